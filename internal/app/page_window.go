package app

import "github.com/garycarlyle/TVShow/internal/domain"

// windowSlots is the arena size: two live pages plus one parked neighbour.
const windowSlots = 3

type windowSlot struct {
	page *domain.Page
	live bool
}

// pageWindow is a fixed ring of pages indexed by page number modulo the slot
// count. Three consecutive page numbers never share a slot.
//
// Live pages form the visible list. A parked page was evicted from the
// visible list but is kept so that scrolling back over it needs no fetch;
// it is dropped as soon as another page claims its slot.
type pageWindow struct {
	slots [windowSlots]windowSlot
}

func slotOf(number int) int {
	return ((number % windowSlots) + windowSlots) % windowSlots
}

// get returns page number if it is retained, live or parked.
func (w *pageWindow) get(number int) (*domain.Page, bool) {
	if number < 1 {
		return nil, false
	}
	s := w.slots[slotOf(number)]
	if s.page == nil || s.page.Number != number {
		return nil, false
	}
	return s.page, true
}

func (w *pageWindow) isLive(number int) bool {
	if _, ok := w.get(number); !ok {
		return false
	}
	return w.slots[slotOf(number)].live
}

// put stores p as live, replacing whatever occupied its slot.
func (w *pageWindow) put(p *domain.Page) {
	w.slots[slotOf(p.Number)] = windowSlot{page: p, live: true}
}

// park removes page number from the visible list and returns how many items it held.
func (w *pageWindow) park(number int) int {
	if !w.isLive(number) {
		return 0
	}
	i := slotOf(number)
	w.slots[i].live = false
	return len(w.slots[i].page.Items)
}

// livePages returns the visible pages in ascending page order.
func (w *pageWindow) livePages() []*domain.Page {
	out := make([]*domain.Page, 0, windowSlots)
	for _, s := range w.slots {
		if s.page == nil || !s.live {
			continue
		}
		i := len(out)
		out = append(out, s.page)
		for i > 0 && out[i-1].Number > out[i].Number {
			out[i-1], out[i] = out[i], out[i-1]
			i--
		}
	}
	return out
}

// items is the visible list: the concatenation of live pages.
func (w *pageWindow) items() []*domain.MovieSummary {
	var out []*domain.MovieSummary
	for _, p := range w.livePages() {
		out = append(out, p.Items...)
	}
	return out
}

func (w *pageWindow) keys() map[domain.MovieKey]struct{} {
	keys := make(map[domain.MovieKey]struct{})
	for _, p := range w.livePages() {
		for _, m := range p.Items {
			keys[m.Key()] = struct{}{}
		}
	}
	return keys
}

func (w *pageWindow) liveNumbers() []int {
	var out []int
	for _, p := range w.livePages() {
		out = append(out, p.Number)
	}
	return out
}

func (w *pageWindow) reset() {
	w.slots = [windowSlots]windowSlot{}
}

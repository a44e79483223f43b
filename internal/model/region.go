package model

// Rect is an axis-aligned rectangle in root window coordinates.
type Rect struct {
	X int `json:"x" yaml:"x" toml:"x"`
	Y int `json:"y" yaml:"y" toml:"y"`
	W int `json:"w" yaml:"w" toml:"w"`
	H int `json:"h" yaml:"h" toml:"h"`
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Intersect returns the overlap of r and o.
func (r Rect) Intersect(o Rect) Rect {
	x0, y0 := max(r.X, o.X), max(r.Y, o.Y)
	x1, y1 := min(r.X+r.W, o.X+o.W), min(r.Y+r.H, o.Y+o.H)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Translate moves the rectangle by dx, dy.
func (r Rect) Translate(dx, dy int) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, W: r.W, H: r.H}
}

// subtract returns the parts of r not covered by o, at most four bands.
func (r Rect) subtract(o Rect) []Rect {
	in := r.Intersect(o)
	if in.Empty() {
		return []Rect{r}
	}
	var out []Rect
	if in.Y > r.Y {
		out = append(out, Rect{X: r.X, Y: r.Y, W: r.W, H: in.Y - r.Y})
	}
	if bottom := r.Y + r.H; in.Y+in.H < bottom {
		out = append(out, Rect{X: r.X, Y: in.Y + in.H, W: r.W, H: bottom - (in.Y + in.H)})
	}
	if in.X > r.X {
		out = append(out, Rect{X: r.X, Y: in.Y, W: in.X - r.X, H: in.H})
	}
	if right := r.X + r.W; in.X+in.W < right {
		out = append(out, Rect{X: in.X + in.W, Y: in.Y, W: right - (in.X + in.W), H: in.H})
	}
	return out
}

// Region is a set of non-overlapping rectangles.
type Region []Rect

// RegionOf returns the region covering a single rectangle.
func RegionOf(r Rect) Region {
	if r.Empty() {
		return nil
	}
	return Region{r}
}

// Empty reports whether the region covers no area.
func (g Region) Empty() bool {
	for _, r := range g {
		if !r.Empty() {
			return false
		}
	}
	return true
}

// Area returns the number of pixels covered.
func (g Region) Area() int {
	n := 0
	for _, r := range g {
		if !r.Empty() {
			n += r.W * r.H
		}
	}
	return n
}

// Subtract removes every rectangle of o from g.
func (g Region) Subtract(o Region) Region {
	cur := g
	for _, cut := range o {
		if cut.Empty() {
			continue
		}
		next := make(Region, 0, len(cur))
		for _, r := range cur {
			next = append(next, r.subtract(cut)...)
		}
		cur = next
	}
	return cur
}

// Translate moves the whole region by dx, dy.
func (g Region) Translate(dx, dy int) Region {
	out := make(Region, len(g))
	for i, r := range g {
		out[i] = r.Translate(dx, dy)
	}
	return out
}

package transform

import "context"

// Copy copies its inputs unchanged, keeping their layout below the source base.
type Copy struct {
	Name string
}

// NewCopy returns a copy unit for the given category (fonts by default).
func NewCopy(category string) *Copy {
	if category == "" {
		category = "fonts"
	}
	return &Copy{Name: category}
}

// Category returns the unit's category.
func (c *Copy) Category() string { return c.Name }

// Transform copies every input under req.Dest.
func (c *Copy) Transform(ctx context.Context, req Request) (Output, error) {
	files := make([]File, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		data, err := req.ReadInput(in)
		if err != nil {
			return Output{}, err
		}
		files = append(files, File{Rel: req.RelToBase(in), Data: data})
	}
	return Commit(req, files)
}

package core

// Kind identifies the placeable layer an object lives on.
type Kind string

const (
	KindToken Kind = "Token"
	KindTile  Kind = "Tile"
	KindLight Kind = "Light"
)

// Kinds lists every placeable layer a subgrid can carry, in scan order.
var Kinds = []Kind{KindTile, KindToken, KindLight}

// Valid reports whether k is one of the known placeable kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindToken, KindTile, KindLight:
		return true
	}
	return false
}

// ObjectRef is a weak reference to a host object.
type ObjectRef struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
}

// Placeable is a snapshot of a host object record.
// X and Y are the stored top-left corner. Width and Height are grid units
// for tokens and pixels for tiles; lights carry no extent.
type Placeable struct {
	ID       string  `json:"_id"`
	Kind     Kind    `json:"kind"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

// Ref returns the weak reference for p.
func (p Placeable) Ref() ObjectRef {
	return ObjectRef{ID: p.ID, Kind: p.Kind}
}

// Apply returns a copy of p with the patch fields set.
func (p Placeable) Apply(patch Patch) Placeable {
	if patch.X != nil {
		p.X = *patch.X
	}
	if patch.Y != nil {
		p.Y = *patch.Y
	}
	if patch.Rotation != nil {
		p.Rotation = *patch.Rotation
	}
	return p
}

// Patch is a partial update of a placeable. Nil fields are unchanged.
type Patch struct {
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
}

// Moves reports whether the patch changes the object's position.
func (p Patch) Moves() bool {
	return p.X != nil || p.Y != nil
}

// Rotates reports whether the patch changes the object's rotation.
func (p Patch) Rotates() bool {
	return p.Rotation != nil
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return !p.Moves() && !p.Rotates()
}

// Float returns a pointer to v, for building patches.
func Float(v float64) *float64 {
	return &v
}

// Origin tags who caused a mutation.
type Origin string

const (
	// OriginExternal is any change made by a user or another module.
	OriginExternal Origin = "external"
	// OriginFrameSync marks write-backs issued by a subgrid pull. Event
	// handlers drop these on sight.
	OriginFrameSync Origin = "frameSync"
)

// UpdateOptions accompany an object update through the host.
type UpdateOptions struct {
	Animate bool   `json:"animate"`
	Origin  Origin `json:"origin,omitempty"`
}

// FromFrame reports whether the update was issued by a subgrid pull.
func (o UpdateOptions) FromFrame() bool {
	return o.Origin == OriginFrameSync
}

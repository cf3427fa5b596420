package core

// FlagScope is the namespace the host stores subgrid flags under.
const FlagScope = "subgrids"

// FlagKey is the scene flag key holding all persisted grids.
const FlagKey = "grids"

// Dimensions of a subgrid. Width and Height are pixels, CellWidth and
// CellHeight are the same extent in grid cells of Size pixels.
type Dimensions struct {
	Width      int `json:"width"`
	Height     int `json:"height"`
	Size       int `json:"size"`
	CellWidth  int `json:"cellWidth"`
	CellHeight int `json:"cellHeight"`
}

// GridPosition is a subgrid's pivot in scene space plus its rotation in degrees.
type GridPosition struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Angle float64 `json:"angle"`
}

// GridRecord is the persisted form of one subgrid.
type GridRecord struct {
	Name       string       `json:"name"`
	Dimensions Dimensions   `json:"dimensions"`
	Position   GridPosition `json:"position"`
	Master     ObjectRef    `json:"master"`
	Markers    []ObjectRef  `json:"markers"`
}

// Grids is the flag value stored under FlagScope.FlagKey, keyed by grid name.
type Grids map[string]GridRecord

// Scene describes the scene a session runs against.
type Scene struct {
	ID            string      `json:"_id"`
	GridSize      int         `json:"grid"`
	Authoritative bool        `json:"authoritative"`
	Tokens        []Placeable `json:"tokens"`
	Tiles         []Placeable `json:"tiles"`
	Lights        []Placeable `json:"lights"`
	Grids         Grids       `json:"grids,omitempty"`
}

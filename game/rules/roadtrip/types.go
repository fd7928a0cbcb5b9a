package roadtrip

import "github.com/wricardo/gamecore/game/engine"

// CellType represents different types of grid cells
type CellType string

const (
	Road         CellType = "road"
	Home         CellType = "home"
	Park         CellType = "park"
	Supercharger CellType = "supercharger"
	Water        CellType = "water"
	Building     CellType = "building"

	// Validation constants
	MinGridSize         = 5
	MaxGridSize         = 50
	MinBattery          = 1
	MaxBattery          = 100
	MaxCars             = 8
	UnreachableDistance = 999999
)

// Entity types and attribute keys
const (
	TypeCar  engine.EntityType = "car"
	TypePark engine.EntityType = "park"

	AttrX          = "x"
	AttrY          = "y"
	AttrBattery    = "battery"
	AttrMaxBattery = "max_battery"
	AttrScore      = "score"
	AttrCrashed    = "crashed"
	AttrVisitedBy  = "visited_by"

	ParamDirection = "direction"

	MetaMessage     = "message"
	MetaBatteryRisk = "battery_risk"
)

var layoutSymbols = map[rune]CellType{
	'R': Road,
	'H': Home,
	'P': Park,
	'S': Supercharger,
	'W': Water,
	'B': Building,
}

// Position represents x,y coordinates
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Messages are the player-facing texts written to the state's meta
type Messages struct {
	Welcome            string `json:"welcome" yaml:"welcome"`
	HomeCharge         string `json:"home_charge" yaml:"home_charge"`
	SuperchargerCharge string `json:"supercharger_charge" yaml:"supercharger_charge"`
	ParkVisited        string `json:"park_visited" yaml:"park_visited"`
	ParkAlreadyVisited string `json:"park_already_visited" yaml:"park_already_visited"`
	Victory            string `json:"victory" yaml:"victory"`
	OutOfBattery       string `json:"out_of_battery" yaml:"out_of_battery"`
	Stranded           string `json:"stranded" yaml:"stranded"`
	CantMove           string `json:"cant_move" yaml:"cant_move"`
	BatteryStatus      string `json:"battery_status" yaml:"battery_status"`
	HitWall            string `json:"hit_wall" yaml:"hit_wall"`
}

// Config describes a road trip board and its battery rules
type Config struct {
	GridSize          int               `json:"grid_size" yaml:"grid_size"`
	MaxBattery        int               `json:"max_battery" yaml:"max_battery"`
	StartingBattery   int               `json:"starting_battery" yaml:"starting_battery"`
	Layout            []string          `json:"layout" yaml:"layout"`
	Legend            map[string]string `json:"legend" yaml:"legend"`
	WallCrashEndsGame bool              `json:"wall_crash_ends_game" yaml:"wall_crash_ends_game"`
	// Cars is the number of cars taking turns; zero means one
	Cars int `json:"cars,omitempty" yaml:"cars,omitempty"`
	// MaxTurns ends the game in a draw once reached; zero disables the limit
	MaxTurns int      `json:"max_turns,omitempty" yaml:"max_turns,omitempty"`
	Messages Messages `json:"messages" yaml:"messages"`
}

// Grid is the static terrain of a board, indexed [y][x]
type Grid [][]CellType

// At returns the cell type at p. Out of bounds counts as a building.
func (g Grid) At(p Position) CellType {
	if p.Y < 0 || p.Y >= len(g) || p.X < 0 || p.X >= len(g[p.Y]) {
		return Building
	}
	return g[p.Y][p.X]
}

// InBounds reports whether p lies on the grid
func (g Grid) InBounds(p Position) bool {
	return p.Y >= 0 && p.Y < len(g) && p.X >= 0 && p.X < len(g[p.Y])
}

// CanMoveTo checks if a car can enter p
func (g Grid) CanMoveTo(p Position) bool {
	if !g.InBounds(p) {
		return false
	}
	cellType := g.At(p)
	// Only water and buildings are obstacles - homes are passable and charge battery
	return cellType != Water && cellType != Building
}

// Find returns the positions of every cell of type t in row-major order
func (g Grid) Find(t CellType) []Position {
	var out []Position
	for y, row := range g {
		for x, cell := range row {
			if cell == t {
				out = append(out, Position{X: x, Y: y})
			}
		}
	}
	return out
}

// IsCharger reports whether t recharges a car
func IsCharger(t CellType) bool {
	return t == Home || t == Supercharger
}

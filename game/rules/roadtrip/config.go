package roadtrip

import (
	"fmt"
	"strings"
)

// ValidateConfig validates a board configuration for correctness and playability
func ValidateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config validation: road trip config is required")
	}

	// Validate grid size
	if config.GridSize < MinGridSize || config.GridSize > MaxGridSize {
		return fmt.Errorf("config validation: grid_size must be between %d and %d, got %d", MinGridSize, MaxGridSize, config.GridSize)
	}

	// Validate battery settings
	if config.MaxBattery < MinBattery || config.MaxBattery > MaxBattery {
		return fmt.Errorf("config validation: max_battery must be between %d and %d, got %d", MinBattery, MaxBattery, config.MaxBattery)
	}
	if config.StartingBattery < MinBattery || config.StartingBattery > config.MaxBattery {
		return fmt.Errorf("config validation: starting_battery must be between %d and max_battery (%d), got %d",
			MinBattery, config.MaxBattery, config.StartingBattery)
	}

	if config.Cars < 0 || config.Cars > MaxCars {
		return fmt.Errorf("config validation: cars must be between 0 and %d, got %d", MaxCars, config.Cars)
	}
	if config.MaxTurns < 0 {
		return fmt.Errorf("config validation: max_turns must not be negative, got %d", config.MaxTurns)
	}

	// Validate layout
	if len(config.Layout) != config.GridSize {
		return fmt.Errorf("config validation: layout must have %d rows to match grid_size, got %d",
			config.GridSize, len(config.Layout))
	}

	grid, err := ParseGrid(config.Layout)
	if err != nil {
		return err
	}
	for i, row := range grid {
		if len(row) != config.GridSize {
			return fmt.Errorf("config validation: row %d must have %d characters to match grid_size, got %d",
				i+1, config.GridSize, len(row))
		}
	}

	homes := grid.Find(Home)
	parks := grid.Find(Park)
	if len(homes) == 0 {
		return fmt.Errorf("config validation: layout must contain at least one home (H) cell")
	}
	if len(parks) == 0 {
		return fmt.Errorf("config validation: layout must contain at least one park (P) cell")
	}

	// Validate legend
	for symbol, cellType := range layoutSymbols {
		key := string(symbol)
		if value, ok := config.Legend[key]; !ok || value != string(cellType) {
			return fmt.Errorf("config validation: legend['%s'] must be '%s', got '%s'", key, cellType, value)
		}
	}

	// Validate messages
	if config.Messages.Welcome == "" {
		return fmt.Errorf("config validation: messages.welcome is required")
	}
	if config.Messages.Victory == "" {
		return fmt.Errorf("config validation: messages.victory is required")
	}
	if config.Messages.OutOfBattery == "" {
		return fmt.Errorf("config validation: messages.out_of_battery is required")
	}
	if config.WallCrashEndsGame && config.Messages.HitWall == "" {
		return fmt.Errorf("config validation: messages.hit_wall is required when wall_crash_ends_game is true")
	}

	// Validate format strings
	if !strings.Contains(config.Messages.ParkVisited, "%d") {
		return fmt.Errorf("config validation: messages.park_visited must contain %%d for score")
	}
	if !strings.Contains(config.Messages.Victory, "%d") {
		return fmt.Errorf("config validation: messages.victory must contain %%d for park count")
	}
	if config.Messages.BatteryStatus != "" && !strings.Contains(config.Messages.BatteryStatus, "%d") {
		return fmt.Errorf("config validation: messages.battery_status must contain %%d for battery values")
	}

	// Validate winnability - every park must be within one charge of a charger
	chargers := append(homes, grid.Find(Supercharger)...)
	for _, park := range parks {
		minDistToCharger := UnreachableDistance
		for _, charger := range chargers {
			if dist := ManhattanDistance(park, charger); dist < minDistToCharger {
				minDistToCharger = dist
			}
		}
		if minDistToCharger > config.MaxBattery {
			return fmt.Errorf("config validation: park at (%d, %d) is unreachable - nearest charger is %d moves away but max battery is %d",
				park.X+1, park.Y+1, minDistToCharger, config.MaxBattery)
		}
	}

	return nil
}

// ParseGrid converts layout rows into terrain
func ParseGrid(layout []string) (Grid, error) {
	grid := make(Grid, len(layout))
	for y, row := range layout {
		grid[y] = make([]CellType, 0, len(row))
		for x, char := range row {
			cellType, ok := layoutSymbols[char]
			if !ok {
				return nil, fmt.Errorf("config validation: invalid character '%c' at row %d, col %d", char, y+1, x+1)
			}
			grid[y] = append(grid[y], cellType)
		}
	}
	return grid, nil
}

// DefaultLegend returns the legend every board must declare
func DefaultLegend() map[string]string {
	legend := make(map[string]string, len(layoutSymbols))
	for symbol, cellType := range layoutSymbols {
		legend[string(symbol)] = string(cellType)
	}
	return legend
}

// DefaultMessages returns the stock message set
func DefaultMessages() Messages {
	return Messages{
		Welcome:            "Welcome! Drive your Tesla to collect parks. Watch your battery!",
		HomeCharge:         "Home sweet home! Battery fully charged!",
		SuperchargerCharge: "Supercharger! Battery fully charged!",
		ParkVisited:        "Park visited! Score: %d",
		ParkAlreadyVisited: "Already visited this park",
		Victory:            "Victory! All %d parks visited!",
		OutOfBattery:       "Out of battery! Game Over!",
		Stranded:           "Stranded with no battery! Game Over!",
		CantMove:           "Can't move there!",
		BatteryStatus:      "Battery: %d/%d",
		HitWall:            "Crashed into a wall! Game Over!",
	}
}

// DefaultConfig returns the classic single-car board
func DefaultConfig() *Config {
	return &Config{
		GridSize:        15,
		MaxBattery:      10,
		StartingBattery: 10,
		Layout: []string{
			"BBBWBBBPBBBWBBB",
			"BRRRRRRRRRRRRRB",
			"BRBBBRRSRBBBRPB",
			"BRBPBRRRRRBPBRB",
			"BRBRBBBRBBBRBBB",
			"BRRRRRRRRRRRRRB",
			"BBBBRWWWWWBBBBB",
			"PRRRRHHHHHRRRRP",
			"BBBBRWWWWWBBBBB",
			"BRRRRRRRRRRRRRB",
			"BRBRBBBRBBBRBBB",
			"BRBPBRRRRRBPBRB",
			"BRBBBRRSRBBBRPB",
			"BRRRRRRRRRRRRRB",
			"BBBWBBBPBBBWBBB",
		},
		Legend:   DefaultLegend(),
		Messages: DefaultMessages(),
	}
}

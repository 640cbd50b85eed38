package InputParameters

import (
	"fmt"
	"sort"

	"github.com/ghodss/yaml"
)

// Parameters obtained from the YAML input file
type MarkerParameters struct {
	Title                string            `yaml:"Title"`
	ManagerName          string            `yaml:"ManagerName"`
	InterpKernel         string            `yaml:"InterpKernel"`
	SpreadKernel         string            `yaml:"SpreadKernel"`
	GhostCellWidth       int               `yaml:"GhostCellWidth"`
	AlphaWork            float64           `yaml:"AlphaWork"`
	BetaWork             float64           `yaml:"BetaWork"`
	NumRanks             int               `yaml:"NumRanks"`
	NumMarkers           int               `yaml:"NumMarkers"`
	Steps                int               `yaml:"Steps"`
	RedistributeInterval int               `yaml:"RedistributeInterval"`
	XLower               [3]float64        `yaml:"XLower"`
	XUpper               [3]float64        `yaml:"XUpper"`
	DomainCells          [3]int            `yaml:"DomainCells"`
	Structures           map[string][2]int `yaml:"Structures"` // Key is structure name, value is [first, last) marker index
}

func (mp *MarkerParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, mp)
}

func (mp *MarkerParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", mp.Title)
	fmt.Printf("[%s]\t\t= Manager Name\n", mp.ManagerName)
	fmt.Printf("[%s]\t\t= Interp Kernel\n", mp.InterpKernel)
	fmt.Printf("[%s]\t\t= Spread Kernel\n", mp.SpreadKernel)
	fmt.Printf("[%d]\t\t\t\t= Ghost Cell Width\n", mp.GhostCellWidth)
	fmt.Printf("%8.5f\t\t= AlphaWork\n", mp.AlphaWork)
	fmt.Printf("%8.5f\t\t= BetaWork\n", mp.BetaWork)
	fmt.Printf("[%d]\t\t\t\t= Ranks\n", mp.NumRanks)
	fmt.Printf("[%d]\t\t\t= Markers\n", mp.NumMarkers)
	fmt.Printf("[%d]\t\t\t\t= Steps\n", mp.Steps)
	fmt.Printf("[%d]\t\t\t\t= Redistribute Interval\n", mp.RedistributeInterval)
	keys := make([]string, len(mp.Structures))
	i := 0
	for k := range mp.Structures {
		keys[i] = k
		i++
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("Structures[%s] = %v\n", key, mp.Structures[key])
	}
}

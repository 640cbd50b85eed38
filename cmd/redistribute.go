/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io/ioutil"
	"log"
	"math"
	"os"
	"sort"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/ibmesh/goimb/InputParameters"
	"github.com/ibmesh/goimb/amr"
	"github.com/ibmesh/goimb/comm"
	"github.com/ibmesh/goimb/geom"
	"github.com/ibmesh/goimb/lagrangian"
)

type ModelRedistribute struct {
	ParamsFile string
	Profile    bool
}

// RedistributeCmd represents the redistribute command
var RedistributeCmd = &cobra.Command{
	Use:   "redistribute",
	Short: "Synthetic marker redistribution benchmark over a multi-rank grid",
	Long: `
Advects a set of Lagrangian markers across a partitioned Cartesian grid,
redistributing ownership at a fixed interval and spreading/interpolating a
marker quantity every step,

goimb redistribute `,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
		)
		fmt.Println("redistribute called")
		mr := &ModelRedistribute{}
		if mr.ParamsFile, err = cmd.Flags().GetString("paramsFile"); err != nil {
			panic(err)
		}
		mr.Profile, _ = cmd.Flags().GetBool("profile")
		mp := processMarkerInput(mr)
		RunRedistribute(mr, mp)
	},
}

func processMarkerInput(mr *ModelRedistribute) (mp *InputParameters.MarkerParameters) {
	var (
		err error
	)
	if len(mr.ParamsFile) == 0 {
		err = fmt.Errorf("must supply a parameters file (-I, --paramsFile) in YAML format")
		fmt.Printf("error: %s\n", err.Error())
		exampleFile := `
########################################
Title: "Marker Benchmark"
ManagerName: markers
InterpKernel: IB_4
SpreadKernel: IB_4
AlphaWork: 1.
BetaWork: 1.
NumRanks: 4
NumMarkers: 4096
Steps: 100
RedistributeInterval: 10
XLower: [0, 0, 0]
XUpper: [64, 16, 16]
DomainCells: [64, 16, 16]
Structures:
  fiber: [0, 4096]
########################################
`
		fmt.Printf("Example File:%s\n", exampleFile)
		os.Exit(1)
	}
	var data []byte
	if data, err = ioutil.ReadFile(mr.ParamsFile); err != nil {
		panic(err)
	}
	mp = &InputParameters.MarkerParameters{}
	if err = mp.Parse(data); err != nil {
		panic(err)
	}
	mp.Print()
	return
}

func init() {
	rootCmd.AddCommand(RedistributeCmd)
	RedistributeCmd.Flags().StringP("paramsFile", "I", "", "YAML file for benchmark parameters like:\n\t- NumRanks\n\t- RedistributeInterval")
	RedistributeCmd.Flags().BoolP("profile", "p", false, "write a CPU profile of the run")
}

// helixMarkers winds the markers through the domain so every rank's
// patches see traffic as the helix advects.
type helixMarkers struct {
	mp *InputParameters.MarkerParameters
}

func (hm *helixMarkers) LevelHasMarkers(ln int) bool { return ln == 0 }

func (hm *helixMarkers) InitialPositions(ln int) []geom.Point {
	var (
		mp  = hm.mp
		pts = make([]geom.Point, mp.NumMarkers)
	)
	for i := range pts {
		t := float64(i) / float64(mp.NumMarkers)
		pts[i][0] = mp.XLower[0] + (float64(i)+0.5)*(mp.XUpper[0]-mp.XLower[0])/float64(mp.NumMarkers)
		pts[i][1] = mp.XLower[1] + (mp.XUpper[1]-mp.XLower[1])*(0.5+0.25*math.Sin(8*math.Pi*t))
		pts[i][2] = mp.XLower[2] + (mp.XUpper[2]-mp.XLower[2])*(0.5+0.25*math.Cos(8*math.Pi*t))
	}
	return pts
}

func (hm *helixMarkers) Structures(ln int) []lagrangian.StructureSpec {
	var (
		names []string
		specs []lagrangian.StructureSpec
	)
	for name := range hm.mp.Structures {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		span := hm.mp.Structures[name]
		specs = append(specs, lagrangian.StructureSpec{Name: name, FirstLag: span[0], LastLag: span[1]})
	}
	return specs
}

func RunRedistribute(mr *ModelRedistribute, mp *InputParameters.MarkerParameters) {
	if mr.Profile {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}
	var (
		start = time.Now()
		grp   = comm.NewGroup(mp.NumRanks)
	)
	grp.Run(func(r *comm.Rank) {
		if err := runMarkerRank(r, mp); err != nil {
			log.Fatalf("rank %d: %v", r.ID(), err)
		}
	})
	fmt.Printf("%d markers, %d ranks, %d steps in %v\n",
		mp.NumMarkers, mp.NumRanks, mp.Steps, time.Since(start))
}

func runMarkerRank(r *comm.Rank, mp *InputParameters.MarkerParameters) error {
	g := &amr.Geometry{
		XLower: geom.Point(mp.XLower),
		XUpper: geom.Point(mp.XUpper),
		Domain: geom.NewBox(geom.IntVect{0, 0, 0},
			geom.IntVect{mp.DomainCells[0] - 1, mp.DomainCells[1] - 1, mp.DomainCells[2] - 1}),
	}

	// Slab decomposition along x, one patch per rank.
	var patches []amr.Patch
	for rank := 0; rank < r.Size(); rank++ {
		lo := rank * mp.DomainCells[0] / r.Size()
		hi := (rank+1)*mp.DomainCells[0]/r.Size() - 1
		patches = append(patches, amr.Patch{
			Box: geom.NewBox(geom.IntVect{lo, 0, 0},
				geom.IntVect{hi, mp.DomainCells[1] - 1, mp.DomainCells[2] - 1}),
			Owner: rank,
		})
	}

	h := amr.NewHierarchy(r, g)
	ctx := lagrangian.NewContext(r)
	m, err := ctx.NewManager(mp.ManagerName, lagrangian.Config{
		InterpKernel:   mp.InterpKernel,
		SpreadKernel:   mp.SpreadKernel,
		GhostCellWidth: mp.GhostCellWidth,
		AlphaWork:      mp.AlphaWork,
		BetaWork:       mp.BetaWork,
	})
	if err != nil {
		return err
	}
	m.SetMarkerInitializer(&helixMarkers{mp: mp})
	m.AttachHierarchy(h)
	if _, err = h.InsertLevel(geom.UniformIntVect(1), patches, true); err != nil {
		return err
	}

	if _, err = m.CreateLevelData(lagrangian.VelocityDataName, 0, 3, true); err != nil {
		return err
	}
	f, err := m.CreateLevelData("force", 0, 3, false)
	if err != nil {
		return err
	}
	for j := 0; j < f.Vec().LocalSize(); j++ {
		f.Vec().Set(j, 0, 1)
	}

	var (
		level = h.Level(0)
		dt    = (mp.XUpper[0] - mp.XLower[0]) / float64(mp.Steps) / 2
		cd    = amr.NewCellData(r, level, 3, m.GhostCellWidth())
	)
	for step := 0; step < mp.Steps; step++ {
		x, err := m.LevelData(lagrangian.PositionDataName, 0)
		if err != nil {
			return err
		}
		span := mp.XUpper[0] - mp.XLower[0]
		for j := 0; j < x.Vec().LocalSize(); j++ {
			nx := x.Vec().At(j, 0) + dt
			if nx >= mp.XUpper[0] {
				nx -= span
			}
			x.Vec().Set(j, 0, nx)
		}

		cd.Fill(0)
		if err := m.SpreadValue(cd, "force", 0); err != nil {
			return err
		}
		if err := m.Interp(cd, lagrangian.VelocityDataName, 0, true); err != nil {
			return err
		}

		if (step+1)%mp.RedistributeInterval == 0 {
			if err := m.BeginRedistribute(0); err != nil {
				return err
			}
			if err := m.EndRedistribute(0); err != nil {
				return err
			}
			// Scratch quantities drop with the rebuild.
			if f, err = m.CreateLevelData("force", 0, 3, false); err != nil {
				return err
			}
			for j := 0; j < f.Vec().LocalSize(); j++ {
				f.Vec().Set(j, 0, 1)
			}
		}
	}

	if _, err := m.UpdateWorkload(0, 0); err != nil {
		return err
	}
	if r.ID() == 0 {
		log.Printf("rank 0 owns %d of %d markers after %d steps",
			m.NumLocalNodes(0), m.NumNodes(0), mp.Steps)
	}
	return nil
}

package collections

import (
	"CityBuilder/internal/registry"
	"fmt"
	"math"

	"github.com/aquilax/go-perlin"
)

// DistrictOptions drive the procedural block generator.
type DistrictOptions struct {
	Name     string
	Size     int     // tiles per side
	TileSize float32 // world units per tile
	Seed     int64
	// BlockSize is the number of lots between streets.
	BlockSize int
	// Buildings are ordered from lowest to tallest; noise height picks one.
	Buildings []string
	// Trees fill lots whose noise falls below Density.
	Trees   string
	Lamps   string
	Ground  string
	Density float64
	// Frequency scales tile coordinates before sampling noise.
	Frequency float64
}

func DefaultDistrictOptions() DistrictOptions {
	return DistrictOptions{
		Name:      "district",
		Size:      12,
		TileSize:  10,
		Seed:      1,
		BlockSize: 3,
		Buildings: []string{"APARTMENT_BLOCK", "NEON_ARCADE", "OFFICE_TOWER"},
		Trees:     "TREE_PINE",
		Lamps:     "STREET_LAMP",
		Ground:    "GROUND",
		Density:   0.35,
		Frequency: 0.18,
	}
}

// District is a generated city block: unique buildings placed per object and
// repeated props and ground tiles placed through instancing.
type District struct {
	Buildings ModelCollection
	Instanced InstancedCollection
}

// File wraps the district as a collections document.
func (d District) File() *File {
	return &File{
		Collections: []ModelCollection{d.Buildings},
		Instanced:   []InstancedCollection{d.Instanced},
	}
}

// GenerateDistrict lays out a square grid of lots separated by streets. The
// same options always give the same district.
func GenerateDistrict(opts DistrictOptions) District {
	def := DefaultDistrictOptions()
	if opts.Size <= 0 {
		opts.Size = def.Size
	}
	if opts.TileSize <= 0 {
		opts.TileSize = def.TileSize
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = def.BlockSize
	}
	if opts.Frequency <= 0 {
		opts.Frequency = def.Frequency
	}
	if opts.Name == "" {
		opts.Name = def.Name
	}

	noise := perlin.NewPerlin(2, 2, 3, opts.Seed)
	half := float32(opts.Size-1) * opts.TileSize / 2

	d := District{
		Buildings: ModelCollection{Name: opts.Name + "_buildings"},
		Instanced: InstancedCollection{Name: opts.Name + "_props"},
	}
	var trees, lamps []InstanceSpec

	for i := 0; i < opts.Size; i++ {
		for j := 0; j < opts.Size; j++ {
			x := float32(i)*opts.TileSize - half
			z := float32(j)*opts.TileSize - half
			street := i%(opts.BlockSize+1) == opts.BlockSize || j%(opts.BlockSize+1) == opts.BlockSize

			if street {
				if i%(opts.BlockSize+1) == opts.BlockSize && j%(opts.BlockSize+1) == opts.BlockSize && opts.Lamps != "" {
					lamps = append(lamps, InstanceSpec{Position: registry.Vec3{X: x, Z: z}})
				}
				continue
			}

			v := sample(noise, float64(i)*opts.Frequency, float64(j)*opts.Frequency)
			if v < opts.Density || len(opts.Buildings) == 0 {
				if opts.Trees != "" {
					rot := registry.Vec3{Y: float32(v * 2 * math.Pi)}
					trees = append(trees, InstanceSpec{Position: registry.Vec3{X: x, Z: z}, Rotation: &rot})
				}
				continue
			}

			pick := int((v - opts.Density) / (1 - opts.Density) * float64(len(opts.Buildings)))
			if pick >= len(opts.Buildings) {
				pick = len(opts.Buildings) - 1
			}
			rot := registry.Vec3{Y: float32((i+j)%4) * math.Pi / 2}
			d.Buildings.Instances = append(d.Buildings.Instances, ModelInstance{
				InstanceID: fmt.Sprintf("%s_%d_%d", opts.Name, i, j),
				ModelType:  opts.Buildings[pick],
				Position:   registry.Vec3{X: x, Z: z},
				Rotation:   &rot,
			})
		}
	}

	if opts.Ground != "" {
		d.Instanced.Groups = append(d.Instanced.Groups, InstancedGroupSpec{
			ModelType: opts.Ground,
			Instances: GroundTiles(opts.Size, opts.TileSize),
		})
	}
	if len(trees) > 0 {
		d.Instanced.Groups = append(d.Instanced.Groups, InstancedGroupSpec{ModelType: opts.Trees, Instances: trees})
	}
	if len(lamps) > 0 {
		d.Instanced.Groups = append(d.Instanced.Groups, InstancedGroupSpec{ModelType: opts.Lamps, Instances: lamps})
	}
	return d
}

// sample maps perlin noise to [0, 1].
func sample(p *perlin.Perlin, x, y float64) float64 {
	v := (p.Noise2D(x, y) + 1) / 2
	return math.Max(0, math.Min(1, v))
}

// GroundTiles returns a size x size grid of ground tiles centred on the
// origin. Each tile is a unit plane scaled to tileSize.
func GroundTiles(size int, tileSize float32) []InstanceSpec {
	if size <= 0 || tileSize <= 0 {
		return nil
	}
	half := float32(size-1) * tileSize / 2
	tiles := make([]InstanceSpec, 0, size*size)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			scale := registry.Vec3{X: tileSize, Y: 1, Z: tileSize}
			tiles = append(tiles, InstanceSpec{
				Position: registry.Vec3{X: float32(i)*tileSize - half, Z: float32(j)*tileSize - half},
				Scale:    &scale,
			})
		}
	}
	return tiles
}

package scene

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/lucasb-eyer/go-colorful"
)

// ParseColor reads "#rrggbb", "#rgb" or the same without the leading '#'
// into an RGB triple in [0, 1].
func ParseColor(s string) (mgl32.Vec3, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return mgl32.Vec3{}, fmt.Errorf("empty colour")
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return mgl32.Vec3{}, fmt.Errorf("colour %q: %w", s, err)
	}
	return mgl32.Vec3{float32(c.R), float32(c.G), float32(c.B)}, nil
}

package scene

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"
)

type ColorSpace int

const (
	ColorSpaceLinear ColorSpace = iota
	ColorSpaceSRGB
)

type WrapMode int

const (
	WrapClampToEdge WrapMode = iota
	WrapRepeat
	WrapMirroredRepeat
)

// Texture is a decoded image plus the sampling state a material binds it with.
// Clones share the decoded Image.
type Texture struct {
	ID          uint64
	Name        string
	Path        string
	Image       image.Image
	ColorSpace  ColorSpace
	Offset      mgl32.Vec2
	Repeat      mgl32.Vec2
	Rotation    float32
	WrapS       WrapMode
	WrapT       WrapMode
	FlipY       bool
	NeedsUpdate bool

	disposable
}

func NewTexture(path string, img image.Image) *Texture {
	return &Texture{
		ID:         newID(),
		Name:       path,
		Path:       path,
		Image:      img,
		ColorSpace: ColorSpaceLinear,
		Repeat:     mgl32.Vec2{1, 1},
		WrapS:      WrapClampToEdge,
		WrapT:      WrapClampToEdge,
		FlipY:      true,
	}
}

// Clone returns a new texture sharing the same image with a fresh identity.
func (t *Texture) Clone() *Texture {
	return &Texture{
		ID:          newID(),
		Name:        t.Name,
		Path:        t.Path,
		Image:       t.Image,
		ColorSpace:  t.ColorSpace,
		Offset:      t.Offset,
		Repeat:      t.Repeat,
		Rotation:    t.Rotation,
		WrapS:       t.WrapS,
		WrapT:       t.WrapT,
		FlipY:       t.FlipY,
		NeedsUpdate: true,
	}
}

// Size returns the pixel dimensions, or zero when no image is attached.
func (t *Texture) Size() (int, int) {
	if t.Image == nil {
		return 0, 0
	}
	b := t.Image.Bounds()
	return b.Dx(), b.Dy()
}

// Dispose fires the dispose listeners once. The decoded image is dropped.
func (t *Texture) Dispose() {
	if t.dispose() {
		t.Image = nil
	}
}

package registry

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestAddAndGetDefinition(t *testing.T) {
	r := New()
	if err := r.AddDefinition(ModelDefinition{ID: "BOX", FilePath: "box.glb"}); err != nil {
		t.Fatalf("AddDefinition failed: %v", err)
	}

	def, ok := r.GetDefinition("BOX")
	if !ok {
		t.Fatal("BOX should be registered")
	}
	if def.FilePath != "box.glb" {
		t.Errorf("Expected box.glb, got %s", def.FilePath)
	}

	if _, ok := r.GetDefinition("NOPE"); ok {
		t.Error("NOPE should not be registered")
	}
}

func TestAddDefinitionOverwrites(t *testing.T) {
	r := New()
	_ = r.AddDefinition(ModelDefinition{ID: "A", FilePath: "one.glb"})
	_ = r.AddDefinition(ModelDefinition{ID: "A", FilePath: "two.glb"})

	def, _ := r.GetDefinition("A")
	if def.FilePath != "two.glb" {
		t.Errorf("Expected overwrite, got %s", def.FilePath)
	}
	if len(r.Definitions()) != 1 {
		t.Errorf("Expected 1 definition, got %d", len(r.Definitions()))
	}
}

func TestAddDefinitionRequiresID(t *testing.T) {
	r := New()
	err := r.AddDefinition(ModelDefinition{FilePath: "x.glb"})
	if !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("Expected ErrInvalidDefinition, got %v", err)
	}
}

func TestGetDefinitionReturnsCopy(t *testing.T) {
	r := New()
	_ = r.AddDefinition(ModelDefinition{
		ID:       "A",
		FilePath: "a.glb",
		Textures: TextureSet{RoleBase: "a.png"},
	})

	def, _ := r.GetDefinition("A")
	def.Textures[RoleBase] = "mutated.png"

	again, _ := r.GetDefinition("A")
	if again.Textures[RoleBase] != "a.png" {
		t.Error("Registry entry should not change through a returned copy")
	}
}

func TestValidateDefinition(t *testing.T) {
	r := New()
	_ = r.AddDefinition(ModelDefinition{ID: "OK", FilePath: "ok.glb"})
	_ = r.AddDefinition(ModelDefinition{ID: "EMPTY"})
	_ = r.AddDefinition(ModelDefinition{ID: "PLANE", Procedural: true})

	if !r.ValidateDefinition("OK") {
		t.Error("OK should validate")
	}
	if r.ValidateDefinition("EMPTY") {
		t.Error("EMPTY has no file path and should fail")
	}
	if !r.ValidateDefinition("PLANE") {
		t.Error("Procedural definitions need no file path")
	}
	if r.ValidateDefinition("MISSING") {
		t.Error("MISSING should fail")
	}
}

func TestMustDefinition(t *testing.T) {
	r := New()
	_, err := r.MustDefinition("GHOST")
	if !errors.Is(err, ErrUnknownModel) {
		t.Errorf("Expected ErrUnknownModel, got %v", err)
	}
}

func TestAds(t *testing.T) {
	r := New()
	if err := r.AddAd(AdDefinition{ID: "AD"}); !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("Ad without diffuse texture should be rejected, got %v", err)
	}
	if err := r.AddAd(AdDefinition{ID: "AD", DiffuseTexture: "ad.png", Width: 2, Height: 1}); err != nil {
		t.Fatalf("AddAd failed: %v", err)
	}
	ad, ok := r.GetAd("AD")
	if !ok || ad.Width != 2 {
		t.Errorf("Unexpected ad %+v", ad)
	}
	if !ad.IsDoubleSided() {
		t.Error("Ads are double sided by default")
	}
}

func TestLoadYAML(t *testing.T) {
	doc := `
models:
  - id: TOWER
    filePath: tower.glb
    defaultScale: 2
    hasRoofLights: true
    textures:
      base: tower.png
  - id: LAMP
    filePath: lamp.obj
    defaultScale: [1, 2, 3]
  - id: KIOSK
    filePath: kiosk.obj
    defaultScale: {x: 4, y: 5, z: 6}
ads:
  - id: AD
    diffuseTexture: ad.png
    width: 3
    height: 2
    doubleSided: false
`
	r := New()
	n, err := r.LoadYAML(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadYAML failed: %v", err)
	}
	if n != 4 {
		t.Errorf("Expected 4 definitions, got %d", n)
	}

	tower, _ := r.GetDefinition("TOWER")
	if tower.Scale() != (mgl32.Vec3{2, 2, 2}) {
		t.Errorf("Scalar scale should be uniform, got %v", tower.Scale())
	}
	if !tower.HasRoofLights || tower.Textures[RoleBase] != "tower.png" {
		t.Errorf("Unexpected tower %+v", tower)
	}
	lamp, _ := r.GetDefinition("LAMP")
	if lamp.Scale() != (mgl32.Vec3{1, 2, 3}) {
		t.Errorf("Unexpected lamp scale %v", lamp.Scale())
	}
	kiosk, _ := r.GetDefinition("KIOSK")
	if kiosk.Scale() != (mgl32.Vec3{4, 5, 6}) {
		t.Errorf("Unexpected kiosk scale %v", kiosk.Scale())
	}
	ad, _ := r.GetAd("AD")
	if ad.IsDoubleSided() {
		t.Error("doubleSided: false should be honoured")
	}
}

func TestLoadYAMLRejectsMissingID(t *testing.T) {
	r := New()
	_, err := r.LoadYAML(strings.NewReader("models:\n  - filePath: a.glb\n"))
	if !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("Expected ErrInvalidDefinition, got %v", err)
	}
	if len(r.Definitions()) != 0 {
		t.Error("Nothing should be registered from an invalid document")
	}
}

func TestNewDefault(t *testing.T) {
	r, err := NewDefault()
	if err != nil {
		t.Fatalf("NewDefault failed: %v", err)
	}
	ground, ok := r.GetDefinition("GROUND")
	if !ok || !ground.Procedural {
		t.Error("GROUND should be a procedural built-in")
	}
	if len(r.ByCategory("building")) == 0 {
		t.Error("Expected built-in buildings")
	}
	if len(r.Ads()) == 0 {
		t.Error("Expected built-in ads")
	}
	for _, id := range r.Definitions() {
		if !r.ValidateDefinition(id) {
			t.Errorf("Built-in %s does not validate", id)
		}
	}
}

func TestTextureSetRolesSorted(t *testing.T) {
	ts := TextureSet{RoleNormal: "n.png", RoleBase: "b.png", RoleEmissive: ""}
	roles := ts.Roles()
	if len(roles) != 2 || roles[0] != RoleBase || roles[1] != RoleNormal {
		t.Errorf("Unexpected roles %v", roles)
	}
}

func TestTextureRoleIsColor(t *testing.T) {
	for role, want := range map[TextureRole]bool{
		RoleBase:      true,
		RoleEmissive:  true,
		RoleNormal:    false,
		RoleRoughness: false,
		RoleSpecular:  false,
	} {
		if got := role.IsColor(); got != want {
			t.Errorf("%s.IsColor() = %v, want %v", role, got, want)
		}
	}
}

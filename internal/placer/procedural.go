package placer

import (
	"CityBuilder/internal/registry"
	"CityBuilder/internal/scene"
	"context"

	"github.com/go-gl/mathgl/mgl32"
)

// newGroundMesh builds the unit ground tile: a horizontal 1x1 plane with the
// definition's textures bound and repeating. Scale comes from the placement.
func newGroundMesh(ctx context.Context, loader AssetLoader, def *registry.ModelDefinition) *scene.Mesh {
	mat := scene.NewMaterial(def.ID + "_material")
	mat.Color = mgl32.Vec3{0.35, 0.35, 0.38}
	mat.Roughness = 0.9
	mat.UserData["procedural"] = true

	if len(def.Textures.Roles()) > 0 && loader != nil {
		textures := loader.LoadTextures(ctx, def.Textures)
		if t := textures[registry.RoleBase]; t != nil {
			mat.Map = t
			mat.Color = mgl32.Vec3{1, 1, 1}
		}
		mat.RoughnessMap = textures[registry.RoleRoughness]
		mat.NormalMap = textures[registry.RoleNormal]
		mat.SpecularMap = textures[registry.RoleSpecular]
	}
	return scene.NewMesh(scene.NewGroundGeometry(1, 1), mat)
}

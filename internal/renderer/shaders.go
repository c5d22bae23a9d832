package renderer

import (
	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
)

// =============================================================
//
//	Shaders
//
// =============================================================
type Shader struct {
	vertexSource   string
	fragmentSource string
	program        uint32
	uniforms       *UniformCache
}

// Compile builds the program. It reports false when compile or link failed.
func (shader *Shader) Compile() bool {
	vs, ok := GenShader(shader.vertexSource, gl.VERTEX_SHADER)
	if !ok {
		return false
	}
	fs, ok := GenShader(shader.fragmentSource, gl.FRAGMENT_SHADER)
	if !ok {
		gl.DeleteShader(vs)
		return false
	}
	program, ok := GenShaderProgram(vs, fs)
	if !ok {
		return false
	}
	shader.program = program
	shader.uniforms = NewUniformCache(program)
	return true
}

func (shader *Shader) Use() {
	gl.UseProgram(shader.program)
}

func (shader *Shader) Delete() {
	if shader.program != 0 {
		gl.DeleteProgram(shader.program)
		shader.program = 0
	}
}

func (shader *Shader) SetVec3(name string, value mgl32.Vec3) {
	shader.uniforms.SetVec3(name, value.X(), value.Y(), value.Z())
}

func (shader *Shader) SetFloat(name string, value float32) {
	shader.uniforms.SetFloat(name, value)
}

func (shader *Shader) SetInt(name string, value int32) {
	shader.uniforms.SetInt(name, value)
}

func (shader *Shader) SetBool(name string, value bool) {
	var v int32
	if value {
		v = 1
	}
	shader.uniforms.SetInt(name, v)
}

func (shader *Shader) SetMat4(name string, m mgl32.Mat4) {
	shader.uniforms.SetMat4(name, m)
}

func (shader *Shader) SetMat3(name string, m mgl32.Mat3) {
	shader.uniforms.SetMat3(name, m)
}

var vertexShaderSource = `#version 330 core

layout(location = 0) in vec3 inPosition;
layout(location = 1) in vec2 inTexCoord;
layout(location = 2) in vec3 inNormal;
layout(location = 3) in mat4 instanceModel;

uniform bool isInstanced;
uniform mat4 model;
uniform mat4 viewProjection;
uniform mat3 uvTransform;

out vec2 fragTexCoord;
out vec3 Normal;
out vec3 FragPos;

void main() {
    // Instance matrices are relative to the owning node.
    mat4 modelMatrix = isInstanced ? model * instanceModel : model;

    FragPos = vec3(modelMatrix * vec4(inPosition, 1.0));
    Normal = mat3(transpose(inverse(modelMatrix))) * inNormal;
    fragTexCoord = (uvTransform * vec3(inTexCoord, 1.0)).xy;

    gl_Position = viewProjection * vec4(FragPos, 1.0);
}
` + "\x00"

var fragmentShaderSource = `#version 330 core
#define MAX_POINT_LIGHTS 8

in vec2 fragTexCoord;
in vec3 Normal;
in vec3 FragPos;

uniform struct Light {
    vec3 direction;
    vec3 color;
    float intensity;
    float ambientStrength;
} light;

uniform int pointLightCount;
uniform vec3 pointLightPositions[MAX_POINT_LIGHTS];
uniform vec3 pointLightColors[MAX_POINT_LIGHTS];
uniform float pointLightIntensities[MAX_POINT_LIGHTS];
uniform float pointLightDistances[MAX_POINT_LIGHTS];

uniform vec3 viewPos;
uniform vec3 diffuseColor;
uniform vec3 emissiveColor;
uniform float emissiveIntensity;
uniform float roughness;
uniform float metalness;
uniform float opacity;
uniform float alphaTest;
uniform float aoIntensity;
uniform bool toneMapped;

uniform sampler2D baseMap;
uniform sampler2D emissiveMap;
uniform sampler2D alphaMap;
uniform sampler2D aoMap;
uniform bool hasBaseMap;
uniform bool hasEmissiveMap;
uniform bool hasAlphaMap;
uniform bool hasAOMap;

out vec4 FragColor;

vec3 shade(vec3 albedo, vec3 n, vec3 v, vec3 l, vec3 color, float intensity) {
    float diff = max(dot(n, l), 0.0);
    vec3 h = normalize(l + v);
    float shininess = mix(128.0, 4.0, roughness);
    float spec = pow(max(dot(n, h), 0.0), shininess) * (1.0 - roughness);
    vec3 specColor = mix(vec3(0.04), albedo, metalness);
    return (diff * albedo * (1.0 - metalness) + spec * specColor) * color * intensity;
}

void main() {
    vec4 base = vec4(diffuseColor, opacity);
    if (hasBaseMap) {
        base *= texture(baseMap, fragTexCoord);
    }
    if (hasAlphaMap) {
        base.a *= texture(alphaMap, fragTexCoord).g;
    }
    if (base.a < alphaTest) {
        discard;
    }

    vec3 n = normalize(Normal);
    vec3 v = normalize(viewPos - FragPos);
    float ao = 1.0;
    if (hasAOMap) {
        ao = mix(1.0, texture(aoMap, fragTexCoord).r, aoIntensity);
    }

    vec3 result = light.ambientStrength * light.color * base.rgb * ao;
    result += shade(base.rgb, n, v, normalize(-light.direction), light.color, light.intensity);

    for (int i = 0; i < pointLightCount && i < MAX_POINT_LIGHTS; i++) {
        vec3 toLight = pointLightPositions[i] - FragPos;
        float d = length(toLight);
        float range = max(pointLightDistances[i], 0.001);
        float atten = clamp(1.0 - d / range, 0.0, 1.0);
        result += shade(base.rgb, n, v, toLight / max(d, 0.0001), pointLightColors[i], pointLightIntensities[i] * atten * atten);
    }

    vec3 emissive = emissiveColor * emissiveIntensity;
    if (hasEmissiveMap) {
        emissive *= texture(emissiveMap, fragTexCoord).rgb;
    }
    result += emissive;

    if (toneMapped) {
        result = result / (result + vec3(1.0));
    }
    result = pow(result, vec3(1.0 / 2.2));
    FragColor = vec4(result, base.a);
}
` + "\x00"

func InitShader() Shader {
	return Shader{
		vertexSource:   vertexShaderSource,
		fragmentSource: fragmentShaderSource,
	}
}

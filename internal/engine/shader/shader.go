// Package shader provides OpenGL shader compilation and the model program.
package shader

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
)

// CompileProgram compiles vertex and fragment shaders and links them into a program.
func CompileProgram(vertexSrc, fragmentSrc string) (uint32, error) {
	vertShader, err := compileShader(vertexSrc, gl.VERTEX_SHADER, "vertex")
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(vertShader)

	fragShader, err := compileShader(fragmentSrc, gl.FRAGMENT_SHADER, "fragment")
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(fragShader)

	program := gl.CreateProgram()
	gl.AttachShader(program, vertShader)
	gl.AttachShader(program, fragShader)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("link: %s", programLog(program))
	}

	return program, nil
}

func compileShader(source string, shaderType uint32, name string) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csource, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csource, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		msg := make([]byte, logLen+1)
		gl.GetShaderInfoLog(shader, logLen, nil, &msg[0])
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("%s shader: %s", name, gl.GoStr(&msg[0]))
	}

	return shader, nil
}

func programLog(program uint32) string {
	var logLen int32
	gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLen)
	msg := make([]byte, logLen+1)
	gl.GetProgramInfoLog(program, logLen, nil, &msg[0])
	return gl.GoStr(&msg[0])
}

// Uniform returns the location of a uniform, or -1 if it is not active.
func Uniform(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(name+"\x00"))
}

const modelVertexSource = `#version 410 core
layout (location = 0) in vec3 aPosition;
layout (location = 1) in vec3 aNormal;
layout (location = 2) in vec2 aTexCoord;

uniform mat4 uViewProj;
uniform mat4 uModel;

out vec3 vNormal;
out vec2 vTexCoord;

void main() {
    vNormal = mat3(uModel) * aNormal;
    vTexCoord = aTexCoord;
    gl_Position = uViewProj * uModel * vec4(aPosition, 1.0);
}
`

const modelFragmentSource = `#version 410 core
in vec3 vNormal;
in vec2 vTexCoord;

uniform vec3 uLightDir;
uniform vec3 uColor;

out vec4 FragColor;

void main() {
    float diffuse = max(dot(normalize(vNormal), -uLightDir), 0.0);
    FragColor = vec4(uColor * (0.35 + 0.65 * diffuse), 1.0);
}
`

// ModelProgram is the untextured, directionally lit program used to preview
// model pieces. Vertex attributes follow the model.Vertex layout.
type ModelProgram struct {
	ID uint32

	viewProj int32
	model    int32
	lightDir int32
	color    int32
}

// NewModelProgram compiles the model program.
func NewModelProgram() (*ModelProgram, error) {
	id, err := CompileProgram(modelVertexSource, modelFragmentSource)
	if err != nil {
		return nil, fmt.Errorf("model program: %w", err)
	}
	return &ModelProgram{
		ID:       id,
		viewProj: Uniform(id, "uViewProj"),
		model:    Uniform(id, "uModel"),
		lightDir: Uniform(id, "uLightDir"),
		color:    Uniform(id, "uColor"),
	}, nil
}

// Use binds the program and sets the per-frame uniforms.
func (p *ModelProgram) Use(viewProj mgl32.Mat4, lightDir, color mgl32.Vec3) {
	gl.UseProgram(p.ID)
	gl.UniformMatrix4fv(p.viewProj, 1, false, &viewProj[0])
	light := lightDir.Normalize()
	gl.Uniform3f(p.lightDir, light.X(), light.Y(), light.Z())
	gl.Uniform3f(p.color, color.X(), color.Y(), color.Z())
}

// SetModel sets the transform of the next draw.
func (p *ModelProgram) SetModel(m mgl32.Mat4) {
	gl.UniformMatrix4fv(p.model, 1, false, &m[0])
}

// Delete frees the program.
func (p *ModelProgram) Delete() {
	gl.DeleteProgram(p.ID)
}

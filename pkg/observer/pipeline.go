package observer

import (
	"encoding/binary"
	"errors"
	"math"

	"golang.org/x/image/math/f32"

	"github.com/df07/go-schwarzschild-raytracer/pkg/core"
)

// PipelineSize is the size in bytes of a marshalled TransformationPipeline
const PipelineSize = 3*16*4 + 4*4

// ErrPipelineSize is returned when unmarshalling a buffer of the wrong size
var ErrPipelineSize = errors.New("observer: transformation pipeline must be 208 bytes")

// TransformationPipeline is the per frame output of the observer. The
// matrices are 3x3 rotations padded to 4x4, stored row by row as f32.Mat4 is.
type TransformationPipeline struct {
	DisplayToMovement f32.Mat4 `json:"display_to_movement"`
	MovementToCentral f32.Mat4 `json:"movement_to_central"`
	CentralToUV       f32.Mat4 `json:"central_to_uv"`
	// PsiFactorAndPosition holds the speed relative to a static observer and the position
	PsiFactorAndPosition f32.Vec4 `json:"psi_factor_and_position"`
}

func newTransformationPipeline(d2m, m2c, c2uv core.Mat3, psiFactor float64, pos core.Vec3) TransformationPipeline {
	return TransformationPipeline{
		DisplayToMovement:    toMat4(d2m),
		MovementToCentral:    toMat4(m2c),
		CentralToUV:          toMat4(c2uv),
		PsiFactorAndPosition: f32.Vec4{float32(psiFactor), float32(pos.X), float32(pos.Y), float32(pos.Z)},
	}
}

func toMat4(m core.Mat3) f32.Mat4 {
	var out f32.Mat4
	for row := 0; row < 3; row++ {
		r := m.Row(row)
		out[row*4+0] = float32(r.X)
		out[row*4+1] = float32(r.Y)
		out[row*4+2] = float32(r.Z)
	}
	out[15] = 1
	return out
}

// Mat3FromMat4 returns the upper left 3x3 block of m
func Mat3FromMat4(m f32.Mat4) core.Mat3 {
	col := func(c int) core.Vec3 {
		return core.NewVec3(float64(m[c]), float64(m[4+c]), float64(m[8+c]))
	}
	return core.Mat3FromCols(col(0), col(1), col(2))
}

// PsiFactor returns the speed of the observer relative to a static observer
func (p TransformationPipeline) PsiFactor() float64 {
	return float64(p.PsiFactorAndPosition[0])
}

// Position returns the observer position the pipeline was built for
func (p TransformationPipeline) Position() core.Vec3 {
	v := p.PsiFactorAndPosition
	return core.NewVec3(float64(v[1]), float64(v[2]), float64(v[3]))
}

// MarshalBinary encodes the pipeline as a std140 uniform block: three column
// major 4x4 matrices followed by the vec4, little endian.
func (p TransformationPipeline) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, PipelineSize)
	for _, m := range []f32.Mat4{p.DisplayToMovement, p.MovementToCentral, p.CentralToUV} {
		for col := 0; col < 4; col++ {
			for row := 0; row < 4; row++ {
				buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(m[row*4+col]))
			}
		}
	}
	for _, v := range p.PsiFactorAndPosition {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf, nil
}

// UnmarshalBinary decodes a uniform block written by MarshalBinary
func (p *TransformationPipeline) UnmarshalBinary(data []byte) error {
	if len(data) != PipelineSize {
		return ErrPipelineSize
	}
	next := func() float32 {
		v := math.Float32frombits(binary.LittleEndian.Uint32(data))
		data = data[4:]
		return v
	}
	for _, m := range []*f32.Mat4{&p.DisplayToMovement, &p.MovementToCentral, &p.CentralToUV} {
		for col := 0; col < 4; col++ {
			for row := 0; row < 4; row++ {
				m[row*4+col] = next()
			}
		}
	}
	for i := range p.PsiFactorAndPosition {
		p.PsiFactorAndPosition[i] = next()
	}
	return nil
}

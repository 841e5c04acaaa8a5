package loaders

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/df07/go-schwarzschild-raytracer/pkg/core"
)

// ErrUnsupportedFormat is returned for PLY encodings the loader cannot read
var ErrUnsupportedFormat = errors.New("loaders: unsupported PLY format")

// PLYHeader represents the parsed header information from a PLY file
type PLYHeader struct {
	Format      string // "binary_little_endian", "binary_big_endian", or "ascii"
	Version     string // Usually "1.0"
	VertexCount int
	VertexProps []PLYProperty

	// Property indices of the positions and optional colours, -1 if absent
	PositionIndices [3]int
	ColorIndices    [3]int
}

// HasColors reports whether every colour channel is present
func (h *PLYHeader) HasColors() bool {
	return h.ColorIndices[0] >= 0 && h.ColorIndices[1] >= 0 && h.ColorIndices[2] >= 0
}

// PLYProperty represents a property definition in the PLY header
type PLYProperty struct {
	Name     string
	Type     string
	IsList   bool
	ListType string // For list properties, the type of the count
	DataType string // For list properties, the type of the data
}

// PLYData contains the vertices of a PLY file. Faces are not needed for
// point clouds and are skipped.
type PLYData struct {
	Vertices []core.Vec3 // Vertex positions (x, y, z)
	Colors   []core.Vec3 // Per-vertex colors (r, g, b) normalized to [0,1] - empty if not present
}

// LoadPLY loads the vertices of a PLY file
func LoadPLY(filename string) (*PLYData, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open PLY file: %w", err)
	}
	defer file.Close()

	data, err := ReadPLY(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return data, nil
}

// ReadPLY reads the vertices of an ascii or binary little endian PLY stream
func ReadPLY(r io.Reader) (*PLYData, error) {
	reader := bufio.NewReader(r)

	header, err := parsePLYHeader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PLY header: %w", err)
	}

	switch header.Format {
	case "binary_little_endian":
		return readBinaryLittleEndian(reader, header)
	case "ascii":
		return readASCII(reader, header)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, header.Format)
	}
}

// parsePLYHeader reads up to and including the end_header line
func parsePLYHeader(reader *bufio.Reader) (*PLYHeader, error) {
	header := &PLYHeader{
		PositionIndices: [3]int{-1, -1, -1},
		ColorIndices:    [3]int{-1, -1, -1},
	}

	var currentElement string
	first := true

	for {
		raw, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("error reading header: %w", err)
		}
		line := strings.TrimSpace(raw)

		if first {
			if line != "ply" {
				return nil, fmt.Errorf("missing ply magic number, got %q", line)
			}
			first = false
			continue
		}
		if line == "end_header" {
			break
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "format":
			if len(parts) >= 3 {
				header.Format = parts[1]
				header.Version = parts[2]
			}
		case "comment", "obj_info":
			// Ignore comments
		case "element":
			if len(parts) < 3 {
				return nil, fmt.Errorf("invalid element definition: %q", line)
			}
			count, err := strconv.Atoi(parts[2])
			if err != nil {
				return nil, fmt.Errorf("invalid element count: %s", parts[2])
			}
			currentElement = parts[1]
			if currentElement == "vertex" {
				header.VertexCount = count
			}
		case "property":
			prop, err := parsePLYProperty(parts[1:])
			if err != nil {
				return nil, fmt.Errorf("failed to parse property: %w", err)
			}
			if currentElement != "vertex" {
				continue
			}
			header.VertexProps = append(header.VertexProps, prop)
			propIndex := len(header.VertexProps) - 1

			switch prop.Name {
			case "x":
				header.PositionIndices[0] = propIndex
			case "y":
				header.PositionIndices[1] = propIndex
			case "z":
				header.PositionIndices[2] = propIndex
			case "red", "r":
				header.ColorIndices[0] = propIndex
			case "green", "g":
				header.ColorIndices[1] = propIndex
			case "blue", "b":
				header.ColorIndices[2] = propIndex
			}
		}
	}

	for _, index := range header.PositionIndices {
		if index < 0 {
			return nil, fmt.Errorf("vertex element needs x, y and z properties")
		}
	}
	return header, nil
}

// parsePLYProperty parses a property line from the PLY header
func parsePLYProperty(parts []string) (PLYProperty, error) {
	if len(parts) < 2 {
		return PLYProperty{}, fmt.Errorf("invalid property definition")
	}

	prop := PLYProperty{}

	if parts[0] == "list" {
		if len(parts) < 4 {
			return PLYProperty{}, fmt.Errorf("invalid list property definition")
		}
		prop.IsList = true
		prop.ListType = parts[1]
		prop.DataType = parts[2]
		prop.Name = parts[3]
	} else {
		prop.Type = parts[0]
		prop.Name = parts[1]
	}

	return prop, nil
}

// newPLYData allocates the vertex arrays for a header
func newPLYData(header *PLYHeader) *PLYData {
	data := &PLYData{Vertices: make([]core.Vec3, 0, header.VertexCount)}
	if header.HasColors() {
		data.Colors = make([]core.Vec3, 0, header.VertexCount)
	}
	return data
}

// appendVertex stores one vertex given all of its property values
func (d *PLYData) appendVertex(header *PLYHeader, values []float64) {
	p := header.PositionIndices
	d.Vertices = append(d.Vertices, core.NewVec3(values[p[0]], values[p[1]], values[p[2]]))

	if header.HasColors() {
		c := header.ColorIndices
		scale := 1.0
		if !isFloatType(header.VertexProps[c[0]].Type) {
			// Convert from 0-255 to 0-1 range
			scale = 1 / 255.0
		}
		d.Colors = append(d.Colors, core.NewVec3(values[c[0]]*scale, values[c[1]]*scale, values[c[2]]*scale))
	}
}

// readASCII reads whitespace separated vertex lines
func readASCII(reader *bufio.Reader, header *PLYHeader) (*PLYData, error) {
	data := newPLYData(header)
	values := make([]float64, len(header.VertexProps))

	for i := 0; i < header.VertexCount; i++ {
		line, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || strings.TrimSpace(line) == "") {
			return nil, fmt.Errorf("failed to read vertex %d: %w", i, err)
		}
		fields := strings.Fields(line)
		if len(fields) < len(values) {
			return nil, fmt.Errorf("vertex %d has %d values, expected %d", i, len(fields), len(values))
		}
		for j := range values {
			if header.VertexProps[j].IsList {
				return nil, fmt.Errorf("list properties on vertices are not supported")
			}
			values[j], err = strconv.ParseFloat(fields[j], 64)
			if err != nil {
				return nil, fmt.Errorf("vertex %d property %s: %w", i, header.VertexProps[j].Name, err)
			}
		}
		data.appendVertex(header, values)
	}
	return data, nil
}

// readBinaryLittleEndian reads fixed size binary vertex records
func readBinaryLittleEndian(reader *bufio.Reader, header *PLYHeader) (*PLYData, error) {
	data := newPLYData(header)
	values := make([]float64, len(header.VertexProps))

	vertexSize := 0
	for _, prop := range header.VertexProps {
		if prop.IsList {
			return nil, fmt.Errorf("list properties on vertices are not supported")
		}
		size := getTypeSize(prop.Type)
		if size == 0 {
			return nil, fmt.Errorf("unsupported data type: %s", prop.Type)
		}
		vertexSize += size
	}

	record := make([]byte, vertexSize)
	for i := 0; i < header.VertexCount; i++ {
		if _, err := io.ReadFull(reader, record); err != nil {
			return nil, fmt.Errorf("failed to read vertex %d: %w", i, err)
		}
		offset := 0
		for j, prop := range header.VertexProps {
			values[j] = decodeLittleEndian(record[offset:], prop.Type)
			offset += getTypeSize(prop.Type)
		}
		data.appendVertex(header, values)
	}
	return data, nil
}

// decodeLittleEndian converts one scalar of the given PLY type to float64
func decodeLittleEndian(b []byte, dataType string) float64 {
	le := binary.LittleEndian
	switch dataType {
	case "float", "float32":
		return float64(math.Float32frombits(le.Uint32(b)))
	case "double", "float64":
		return math.Float64frombits(le.Uint64(b))
	case "int", "int32":
		return float64(int32(le.Uint32(b)))
	case "uint", "uint32":
		return float64(le.Uint32(b))
	case "short", "int16":
		return float64(int16(le.Uint16(b)))
	case "ushort", "uint16":
		return float64(le.Uint16(b))
	case "char", "int8":
		return float64(int8(b[0]))
	default: // uchar, uint8
		return float64(b[0])
	}
}

func isFloatType(dataType string) bool {
	switch dataType {
	case "float", "float32", "double", "float64":
		return true
	}
	return false
}

// getTypeSize returns the size in bytes of a PLY data type, 0 if unknown
func getTypeSize(dataType string) int {
	switch dataType {
	case "float", "float32", "int", "int32", "uint", "uint32":
		return 4
	case "double", "float64":
		return 8
	case "short", "int16", "ushort", "uint16":
		return 2
	case "char", "int8", "uchar", "uint8":
		return 1
	default:
		return 0
	}
}

// Package formats decodes Ragnarok Online resource formats.
package formats

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/Faultbox/midgard-models/pkg/encoding"
)

// RSM format errors.
var (
	ErrInvalidRSMMagic       = errors.New("invalid RSM magic: expected 'GRSM'")
	ErrUnsupportedRSMVersion = errors.New("unsupported RSM version")
	ErrTruncatedRSMData      = errors.New("truncated RSM data")
	ErrInvalidRSMCount       = errors.New("invalid RSM element count")
)

const (
	rsmMagic   = "GRSM"
	rsmNameLen = 40

	maxRSMNodes     = 10000
	maxRSMTextures  = 1000
	maxRSMElements  = 100000
	maxRSMKeyframes = 10000
	maxRSMBoxes     = 1000
)

// RSMVersion is the file version.
type RSMVersion struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v RSMVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast reports whether v >= major.minor.
func (v RSMVersion) AtLeast(major, minor uint8) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

// RSMShadingType is the model's shading mode.
type RSMShadingType int32

const (
	RSMShadingNone   RSMShadingType = 0
	RSMShadingFlat   RSMShadingType = 1
	RSMShadingSmooth RSMShadingType = 2
)

// String returns a human-readable shading type name.
func (s RSMShadingType) String() string {
	switch s {
	case RSMShadingNone:
		return "None"
	case RSMShadingFlat:
		return "Flat"
	case RSMShadingSmooth:
		return "Smooth"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// RSMTexCoord is a texture coordinate with its vertex color.
type RSMTexCoord struct {
	Color [4]uint8 // RGBA, v1.2+
	U, V  float32
}

// RSMFace is a triangle.
type RSMFace struct {
	VertexIDs   [3]uint16
	TexCoordIDs [3]uint16
	TextureID   uint16 // Index into the node's TextureIDs
	Padding     uint16
	TwoSide     int32
	SmoothGroup int32 // v1.2+
}

// RSMPosKeyframe is a position keyframe (v < 1.5).
type RSMPosKeyframe struct {
	Frame    int32
	Position [3]float32
}

// RSMRotKeyframe is a rotation keyframe.
type RSMRotKeyframe struct {
	Frame      int32
	Quaternion [4]float32
}

// RSMScaleKeyframe is a scale keyframe (v1.5+).
type RSMScaleKeyframe struct {
	Frame int32
	Scale [3]float32
}

// RSMNode is one mesh node. Nodes reference their parent by name.
type RSMNode struct {
	Name       string
	Parent     string
	TextureIDs []int32 // Indices into RSM.Textures

	Matrix   [9]float32 // 3x3 row-major
	Offset   [3]float32 // Pivot
	Position [3]float32
	RotAngle float32
	RotAxis  [3]float32
	Scale    [3]float32

	Vertices  [][3]float32
	TexCoords []RSMTexCoord
	Faces     []RSMFace

	PosKeys   []RSMPosKeyframe
	RotKeys   []RSMRotKeyframe
	ScaleKeys []RSMScaleKeyframe
}

// RSMVolumeBox is a collision box stored after the nodes.
type RSMVolumeBox struct {
	Size     [3]float32
	Position [3]float32
	Rotation [3]float32
	Flag     int32 // v1.3+
}

// RSM is a decoded RSM 1.x model.
type RSM struct {
	Version     RSMVersion
	AnimLength  int32 // Milliseconds
	Shading     RSMShadingType
	Alpha       float32
	Textures    []string
	RootNode    string
	Nodes       []RSMNode
	VolumeBoxes []RSMVolumeBox
}

// rsmReader reads little-endian fields and keeps the first error.
type rsmReader struct {
	r   *bytes.Reader
	err error
}

func (d *rsmReader) read(what string, v any) {
	if d.err != nil {
		return
	}
	if err := binary.Read(d.r, binary.LittleEndian, v); err != nil {
		d.err = errors.Wrapf(ErrTruncatedRSMData, "reading %s", what)
	}
}

func (d *rsmReader) string(what string) string {
	if d.err != nil {
		return ""
	}
	buf := make([]byte, rsmNameLen)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		d.err = errors.Wrapf(ErrTruncatedRSMData, "reading %s", what)
		return ""
	}
	return encoding.CString(buf)
}

func (d *rsmReader) count(what string, limit int32) int {
	var n int32
	d.read(what, &n)
	if d.err != nil {
		return 0
	}
	if n < 0 || n > limit {
		d.err = errors.Wrapf(ErrInvalidRSMCount, "%s = %d", what, n)
		return 0
	}
	return int(n)
}

func (d *rsmReader) skip(n int64) {
	if d.err != nil {
		return
	}
	if int64(d.r.Len()) < n {
		d.err = errors.Wrap(ErrTruncatedRSMData, "skipping reserved bytes")
		return
	}
	d.r.Seek(n, io.SeekCurrent)
}

// ParseRSM decodes an RSM 1.1-1.5 model.
func ParseRSM(data []byte) (*RSM, error) {
	if len(data) < 6 {
		return nil, ErrTruncatedRSMData
	}
	if string(data[:4]) != rsmMagic {
		return nil, ErrInvalidRSMMagic
	}

	rsm := &RSM{Version: RSMVersion{Major: data[4], Minor: data[5]}}
	if rsm.Version.Major != 1 || rsm.Version.Minor < 1 || rsm.Version.Minor > 5 {
		return nil, errors.Wrap(ErrUnsupportedRSMVersion, rsm.Version.String())
	}

	d := &rsmReader{r: bytes.NewReader(data[6:])}
	d.read("animation length", &rsm.AnimLength)
	d.read("shading", &rsm.Shading)

	rsm.Alpha = 1
	if rsm.Version.AtLeast(1, 4) {
		var alpha uint8
		d.read("alpha", &alpha)
		rsm.Alpha = float32(alpha) / 255
	}
	d.skip(16)

	rsm.Textures = make([]string, d.count("texture count", maxRSMTextures))
	for i := range rsm.Textures {
		rsm.Textures[i] = d.string("texture name")
	}
	rsm.RootNode = d.string("root node name")

	nodeCount := d.count("node count", maxRSMNodes)
	if d.err != nil {
		return nil, d.err
	}
	rsm.Nodes = make([]RSMNode, nodeCount)
	for i := range rsm.Nodes {
		parseRSMNode(d, rsm.Version, &rsm.Nodes[i])
		if d.err != nil {
			return nil, errors.Wrapf(d.err, "parsing node %d", i)
		}
	}

	// Volume boxes are optional trailing data.
	if d.r.Len() >= 4 {
		rsm.VolumeBoxes = make([]RSMVolumeBox, d.count("volume box count", maxRSMBoxes))
		for i := range rsm.VolumeBoxes {
			box := &rsm.VolumeBoxes[i]
			d.read("box size", &box.Size)
			d.read("box position", &box.Position)
			d.read("box rotation", &box.Rotation)
			if rsm.Version.AtLeast(1, 3) {
				d.read("box flag", &box.Flag)
			}
		}
		if d.err != nil {
			return nil, d.err
		}
	}

	return rsm, nil
}

func parseRSMNode(d *rsmReader, version RSMVersion, node *RSMNode) {
	node.Name = d.string("node name")
	node.Parent = d.string("parent name")

	node.TextureIDs = make([]int32, d.count("node texture count", maxRSMTextures))
	d.read("node texture ids", node.TextureIDs)

	d.read("matrix", &node.Matrix)
	d.read("offset", &node.Offset)
	d.read("position", &node.Position)
	d.read("rotation angle", &node.RotAngle)
	d.read("rotation axis", &node.RotAxis)
	d.read("scale", &node.Scale)

	node.Vertices = make([][3]float32, d.count("vertex count", maxRSMElements))
	d.read("vertices", node.Vertices)

	node.TexCoords = make([]RSMTexCoord, d.count("texcoord count", maxRSMElements))
	for i := range node.TexCoords {
		tc := &node.TexCoords[i]
		if version.AtLeast(1, 2) {
			d.read("vertex color", &tc.Color)
		} else {
			tc.Color = [4]uint8{255, 255, 255, 255}
		}
		d.read("texcoord", &tc.U)
		d.read("texcoord", &tc.V)
	}

	node.Faces = make([]RSMFace, d.count("face count", maxRSMElements))
	for i := range node.Faces {
		f := &node.Faces[i]
		d.read("face vertices", &f.VertexIDs)
		d.read("face texcoords", &f.TexCoordIDs)
		d.read("face texture", &f.TextureID)
		d.read("face padding", &f.Padding)
		d.read("face two-side flag", &f.TwoSide)
		if version.AtLeast(1, 2) {
			d.read("face smooth group", &f.SmoothGroup)
		}
	}

	if !version.AtLeast(1, 5) {
		node.PosKeys = make([]RSMPosKeyframe, d.count("position key count", maxRSMKeyframes))
		d.read("position keys", node.PosKeys)
	}

	node.RotKeys = make([]RSMRotKeyframe, d.count("rotation key count", maxRSMKeyframes))
	d.read("rotation keys", node.RotKeys)

	if version.AtLeast(1, 5) {
		node.ScaleKeys = make([]RSMScaleKeyframe, d.count("scale key count", maxRSMKeyframes))
		d.read("scale keys", node.ScaleKeys)
	}
}

// ParseRSMFile decodes an RSM file from disk.
func ParseRSMFile(path string) (*RSM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading RSM file")
	}
	return ParseRSM(data)
}

// EncodeRSM writes rsm in the layout ParseRSM reads.
func EncodeRSM(rsm *RSM) ([]byte, error) {
	v := rsm.Version
	if v.Major != 1 || v.Minor < 1 || v.Minor > 5 {
		return nil, errors.Wrap(ErrUnsupportedRSMVersion, v.String())
	}

	var buf bytes.Buffer
	w := func(x any) { binary.Write(&buf, binary.LittleEndian, x) }
	name := func(s string) error {
		if len(s) >= rsmNameLen {
			return errors.Errorf("name %q longer than %d bytes", s, rsmNameLen-1)
		}
		var b [rsmNameLen]byte
		copy(b[:], s)
		buf.Write(b[:])
		return nil
	}

	buf.WriteString(rsmMagic)
	w([]uint8{v.Major, v.Minor})
	w(rsm.AnimLength)
	w(rsm.Shading)
	if v.AtLeast(1, 4) {
		w(uint8(rsm.Alpha * 255))
	}
	buf.Write(make([]byte, 16))

	w(int32(len(rsm.Textures)))
	for _, t := range rsm.Textures {
		if err := name(t); err != nil {
			return nil, err
		}
	}
	if err := name(rsm.RootNode); err != nil {
		return nil, err
	}

	w(int32(len(rsm.Nodes)))
	for i := range rsm.Nodes {
		n := &rsm.Nodes[i]
		if err := name(n.Name); err != nil {
			return nil, err
		}
		if err := name(n.Parent); err != nil {
			return nil, err
		}
		w(int32(len(n.TextureIDs)))
		w(n.TextureIDs)
		w(n.Matrix)
		w(n.Offset)
		w(n.Position)
		w(n.RotAngle)
		w(n.RotAxis)
		w(n.Scale)
		w(int32(len(n.Vertices)))
		w(n.Vertices)
		w(int32(len(n.TexCoords)))
		for _, tc := range n.TexCoords {
			if v.AtLeast(1, 2) {
				w(tc.Color)
			}
			w(tc.U)
			w(tc.V)
		}
		w(int32(len(n.Faces)))
		for _, f := range n.Faces {
			w(f.VertexIDs)
			w(f.TexCoordIDs)
			w(f.TextureID)
			w(f.Padding)
			w(f.TwoSide)
			if v.AtLeast(1, 2) {
				w(f.SmoothGroup)
			}
		}
		if !v.AtLeast(1, 5) {
			w(int32(len(n.PosKeys)))
			w(n.PosKeys)
		}
		w(int32(len(n.RotKeys)))
		w(n.RotKeys)
		if v.AtLeast(1, 5) {
			w(int32(len(n.ScaleKeys)))
			w(n.ScaleKeys)
		}
	}

	if len(rsm.VolumeBoxes) > 0 {
		w(int32(len(rsm.VolumeBoxes)))
		for _, b := range rsm.VolumeBoxes {
			w(b.Size)
			w(b.Position)
			w(b.Rotation)
			if v.AtLeast(1, 3) {
				w(b.Flag)
			}
		}
	}

	return buf.Bytes(), nil
}

// TotalVertexCount returns the number of vertices across all nodes.
func (rsm *RSM) TotalVertexCount() int {
	total := 0
	for _, node := range rsm.Nodes {
		total += len(node.Vertices)
	}
	return total
}

// TotalFaceCount returns the number of faces across all nodes.
func (rsm *RSM) TotalFaceCount() int {
	total := 0
	for _, node := range rsm.Nodes {
		total += len(node.Faces)
	}
	return total
}

// NodeByName returns the first node called name, or nil.
func (rsm *RSM) NodeByName(name string) *RSMNode {
	for i := range rsm.Nodes {
		if rsm.Nodes[i].Name == name {
			return &rsm.Nodes[i]
		}
	}
	return nil
}

// Root returns the root node. Files whose root name matches no node fall back
// to the first node without a parent.
func (rsm *RSM) Root() *RSMNode {
	if n := rsm.NodeByName(rsm.RootNode); n != nil {
		return n
	}
	for i := range rsm.Nodes {
		if rsm.Nodes[i].Parent == "" {
			return &rsm.Nodes[i]
		}
	}
	return nil
}

// ChildNodes returns the nodes whose parent is parentName, in file order.
// A node never counts as its own child.
func (rsm *RSM) ChildNodes(parentName string) []*RSMNode {
	var children []*RSMNode
	for i := range rsm.Nodes {
		n := &rsm.Nodes[i]
		if n.Parent == parentName && n.Name != parentName {
			children = append(children, n)
		}
	}
	return children
}

// HasAnimation reports whether any node has keyframes.
func (rsm *RSM) HasAnimation() bool {
	for _, node := range rsm.Nodes {
		if len(node.PosKeys) > 0 || len(node.RotKeys) > 0 || len(node.ScaleKeys) > 0 {
			return true
		}
	}
	return false
}

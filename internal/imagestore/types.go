package imagestore

// AnnotationKind identifies the value shape carried by an annotation.
type AnnotationKind string

const (
	KindTag    AnnotationKind = "tag"
	KindMap    AnnotationKind = "map"
	KindDouble AnnotationKind = "double"
	KindFile   AnnotationKind = "file"
)

// Image is an immutable snapshot of a remote image. All mutation
// happens through remote calls; local fields are never written back.
type Image struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	SizeZ         int      `json:"size_z"`
	SizeC         int      `json:"size_c"`
	SizeT         int      `json:"size_t"`
	SizeX         int      `json:"size_x"`
	SizeY         int      `json:"size_y"`
	ChannelLabels []string `json:"channel_labels"`
	PixelsType    string   `json:"pixels_type"`
}

// MaxPixelValue returns the largest representable intensity for the
// image's pixel type, used as the saturation ceiling. Unknown types
// fall back to the float range sentinel of 1.0 (already-normalized
// data).
func (img *Image) MaxPixelValue() float64 {
	switch img.PixelsType {
	case "int8":
		return 127
	case "uint8":
		return 255
	case "int16":
		return 32767
	case "uint16":
		return 65535
	case "int32":
		return 2147483647
	case "uint32":
		return 4294967295
	default:
		return 1.0
	}
}

// Plane holds one (Z,C,T) pixel plane in row-major order.
type Plane struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Values []float64 `json:"values"`
}

// At returns the intensity at row y, column x.
func (p *Plane) At(y, x int) float64 {
	return p.Values[y*p.Width+x]
}

// Annotation is an immutable snapshot of a remote annotation. Exactly
// one of the value fields is meaningful, selected by Kind.
type Annotation struct {
	ID          int64          `json:"id"`
	Kind        AnnotationKind `json:"kind"`
	Namespace   string         `json:"namespace"`
	Name        string         `json:"name,omitempty"`
	TextValue   string         `json:"text_value,omitempty"`
	MapValue    [][2]string    `json:"map_value,omitempty"`
	DoubleValue float64        `json:"double_value,omitempty"`
	FileName    string         `json:"file_name,omitempty"`
	MimeType    string         `json:"mime_type,omitempty"`
}

// ROI is an immutable snapshot of a region of interest on an image.
type ROI struct {
	ID      int64  `json:"id"`
	ImageID int64  `json:"image_id"`
	Name    string `json:"name,omitempty"`
}

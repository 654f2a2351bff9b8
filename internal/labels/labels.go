// Package labels holds the fixed 80-category vocabulary shared by the
// detection models this pipeline understands.
package labels

// Names lists the COCO categories in canonical order.
var Names = [...]string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train",
	"truck", "boat", "traffic light", "fire hydrant", "stop sign",
	"parking meter", "bench", "bird", "cat", "dog", "horse", "sheep",
	"cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella",
	"handbag", "tie", "suitcase", "frisbee", "skis", "snowboard",
	"sports ball", "kite", "baseball bat", "baseball glove", "skateboard",
	"surfboard", "tennis racket", "bottle", "wine glass", "cup", "fork",
	"knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv",
	"laptop", "mouse", "remote", "keyboard", "cell phone", "microwave",
	"oven", "toaster", "sink", "refrigerator", "book", "clock", "vase",
	"scissors", "teddy bear", "hair drier", "toothbrush",
}

var index = func() map[string]int {
	m := make(map[string]int, len(Names))
	for i, name := range Names {
		m[name] = i
	}
	return m
}()

// Name returns the class name for a zero-based category id, or
// "unknown" when the id is out of range.
func Name(id int) string {
	if id < 0 || id >= len(Names) {
		return "unknown"
	}
	return Names[id]
}

// Index returns the zero-based category id for a name, or -1.
func Index(name string) int {
	if id, ok := index[name]; ok {
		return id
	}
	return -1
}

// Valid reports whether name is one of the fixed categories.
func Valid(name string) bool {
	_, ok := index[name]
	return ok
}

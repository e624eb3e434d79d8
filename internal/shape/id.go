package shape

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var defaultSource = NewIDSource(time.Now)

// IDSource hands out shape ids that sort in creation order. The numeric part
// is a unix-nano timestamp forced to be strictly increasing; the suffix is a
// per-source tag so two processes drawing in the same nanosecond never clash.
type IDSource struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
	site string
}

func NewIDSource(now func() time.Time) *IDSource {
	if now == nil {
		now = time.Now
	}
	return &IDSource{
		now:  now,
		site: uuid.NewString()[:8],
	}
}

func (src *IDSource) Next() string {
	src.mu.Lock()
	defer src.mu.Unlock()

	n := src.now().UnixNano()
	if n <= src.last {
		n = src.last + 1
	}
	src.last = n
	return fmt.Sprintf("%019d-%s", n, src.site)
}

// Site is the per-source tag appended to every id.
func (src *IDSource) Site() string { return src.site }

func (src *IDSource) Create(kind Kind, origin Point, style Style) Shape {
	s := Shape{
		ID:          src.Next(),
		Kind:        kind,
		Color:       style.Color,
		StrokeWidth: style.StrokeWidth,
	}
	switch kind {
	case KindFreehand:
		s.Erase = style.Erase
		s.Points = []Point{origin}
	case KindEllipse:
		s.CenterX = origin.X
		s.CenterY = origin.Y
		fallthrough
	default:
		s.X = origin.X
		s.Y = origin.Y
	}
	return s
}

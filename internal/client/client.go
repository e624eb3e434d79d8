package client

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/manpreetbhatti/inkboard/internal/presence"
	"github.com/manpreetbhatti/inkboard/internal/protocol"
	"github.com/manpreetbhatti/inkboard/internal/ratelimit"
	"github.com/manpreetbhatti/inkboard/internal/shape"
)

type Tool string

const (
	ToolSelect    Tool = "select"
	ToolPencil    Tool = "pencil"
	ToolRectangle Tool = "rectangle"
	ToolEllipse   Tool = "ellipse"
	ToolEraser    Tool = "eraser"
)

const (
	DefaultColor          = "#4f46e5"
	DefaultPencilSize     = 4
	DefaultEraserSize     = 30
	DefaultCursorInterval = 30 * time.Millisecond

	shapeStrokeWidth = 3
	eraserColor      = "#ffffff"

	minPencilSize = 1
	maxPencilSize = 50
	minEraserSize = 10
	maxEraserSize = 100
)

// Conn is the connection handle a Client talks through. Transport is the
// websocket implementation; tests substitute their own.
type Conn interface {
	Emit(event protocol.Event, payload any) error
}

// Client is one participant's view of the canvas: the working snapshot,
// its undo history, the local selection and the remote cursors it has seen.
// Remote snapshots replace the working snapshot outright and never touch
// history, so an undo after a remote edit reverts to this client's own last
// entry and discards the remote change.
type Client struct {
	mu     sync.Mutex
	conn   Conn
	logger *zap.Logger
	ids    *shape.IDSource
	cursor *ratelimit.Throttle

	onChange func()

	shapes   shape.Snapshot
	history  *History
	selected string
	drawing  bool
	activeID string

	tool       Tool
	color      string
	pencilSize float64
	eraserSize float64
	name       string

	cursors *presence.Cursors
	members int
}

type Option func(*Client)

// WithTool sets the starting tool. Unknown tools are ignored.
func WithTool(t Tool) Option {
	return func(c *Client) {
		if t.valid() {
			c.tool = t
		}
	}
}

func WithColor(color string) Option { return func(c *Client) { c.color = color } }
func WithName(name string) Option   { return func(c *Client) { c.name = name } }

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}
func WithIDSource(src *shape.IDSource) Option {
	return func(c *Client) { c.ids = src }
}

// WithCursorThrottle replaces the default 30ms cursor throttle.
func WithCursorThrottle(th *ratelimit.Throttle) Option {
	return func(c *Client) { c.cursor = th }
}

// WithOnChange registers a hook run after every state change, outside the
// client's lock, so a renderer can pull fresh state.
func WithOnChange(fn func()) Option {
	return func(c *Client) { c.onChange = fn }
}

func New(conn Conn, opts ...Option) *Client {
	c := &Client{
		conn:       conn,
		logger:     zap.NewNop(),
		shapes:     shape.Snapshot{},
		history:    NewHistory(),
		tool:       ToolPencil,
		color:      DefaultColor,
		pencilSize: DefaultPencilSize,
		eraserSize: DefaultEraserSize,
		cursors:    presence.NewCursors(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ids == nil {
		c.ids = shape.NewIDSource(time.Now)
	}
	if c.cursor == nil {
		c.cursor = ratelimit.NewThrottle(DefaultCursorInterval)
	}
	if c.name == "" {
		c.name = "User " + c.ids.Site()[:4]
	}
	return c
}

// Gestures

// PointerDown starts a gesture. hit is the id of the shape under the pointer
// as reported by the rendering surface, or "" for empty canvas; only the
// select tool looks at it.
func (c *Client) PointerDown(p shape.Point, hit string) {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.drawing {
		return
	}

	if c.tool == ToolSelect {
		if hit == "" || c.shapes.IndexOf(hit) < 0 {
			c.selected = ""
			return
		}
		c.selected = hit
		return
	}

	s := c.ids.Create(c.tool.kind(), p, c.style())
	c.shapes = append(c.shapes, s)
	c.drawing = true
	c.activeID = s.ID
	c.emitShapes()
}

// PointerMove reports the pointer to peers (throttled) and, mid-gesture,
// grows the active shape and broadcasts the canvas on every call.
func (c *Client) PointerMove(p shape.Point) {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cursor.Allow() {
		c.emit(protocol.EventCursorUpdate, protocol.Cursor{X: p.X, Y: p.Y, Color: c.color, Name: c.name})
	}

	if !c.drawing {
		return
	}
	i := c.shapes.IndexOf(c.activeID)
	if i < 0 {
		// a remote snapshot replaced the canvas and the stroke is gone
		return
	}
	c.shapes[i] = shape.Extend(c.shapes[i], p)
	c.emitShapes()
}

// PointerUp ends a drawing gesture and commits it to history.
func (c *Client) PointerUp() {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.drawing {
		return
	}
	c.drawing = false
	c.activeID = ""
	c.history.Commit(c.shapes)
	c.emitShapes()
}

// Select marks a shape as selected. Unknown ids are ignored.
func (c *Client) Select(id string) {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shapes.IndexOf(id) >= 0 {
		c.selected = id
	}
}

func (c *Client) ClearSelection() {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = ""
}

// DragEnd moves a shape by (dx, dy) and commits the move.
func (c *Client) DragEnd(id string, dx, dy float64) {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.drawing {
		return
	}

	i := c.shapes.IndexOf(id)
	if i < 0 {
		return
	}
	c.shapes = c.shapes.Replace(i, shape.Translate(c.shapes[i], dx, dy))
	c.emitShapes()
	c.history.Commit(c.shapes)
}

// Delete removes the selected shape. Without a selection it does nothing.
func (c *Client) Delete() {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selected == "" {
		return
	}
	id := c.selected
	c.selected = ""
	if c.shapes.IndexOf(id) < 0 {
		return
	}
	c.shapes = c.shapes.Without(id)
	c.emitShapes()
	c.history.Commit(c.shapes)
}

// Clear empties the canvas. It commits like any other gesture so undo
// brings the previous canvas back.
func (c *Client) Clear() {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shapes = shape.Snapshot{}
	c.selected = ""
	c.drawing = false
	c.activeID = ""
	c.emitShapes()
	c.history.Commit(c.shapes)
}

// Undo steps history back and broadcasts the restored canvas. It does
// nothing at the first entry or while a stroke is in progress.
func (c *Client) Undo() {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.drawing {
		return
	}
	snap, ok := c.history.Undo()
	if !ok {
		return
	}
	c.restore(snap)
}

// Redo is the inverse of Undo, with the same restrictions.
func (c *Client) Redo() {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.drawing {
		return
	}
	snap, ok := c.history.Redo()
	if !ok {
		return
	}
	c.restore(snap)
}

func (c *Client) restore(snap shape.Snapshot) {
	c.shapes = snap
	c.dropStaleSelection()
	c.emitShapes()
}

// Toolbar

// SetTool switches tools and drops the selection.
func (c *Client) SetTool(t Tool) {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drawing || !t.valid() {
		return
	}
	c.tool = t
	c.selected = ""
}

func (c *Client) SetColor(color string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.color = color
}

func (c *Client) SetPencilSize(size float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pencilSize = clamp(size, minPencilSize, maxPencilSize)
}

func (c *Client) SetEraserSize(size float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eraserSize = clamp(size, minEraserSize, maxEraserSize)
}

// Inbound

// Handle applies a frame from the relay. Snapshots replace the working
// canvas wholesale; they are never merged shape by shape.
func (c *Client) Handle(env protocol.Envelope) error {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()

	switch env.Event {
	case protocol.EventShapesUpdate:
		snap, err := env.Shapes()
		if err != nil {
			return err
		}
		c.shapes = snap
		c.dropStaleSelection()

	case protocol.EventCursorUpdate:
		cur, err := env.Cursor()
		if err != nil {
			return err
		}
		if cur.ID == "" {
			return nil
		}
		c.cursors.Upsert(cur.ID, presence.Entry{X: cur.X, Y: cur.Y, Color: cur.Color, Name: cur.Name})

	case protocol.EventParticipantCount:
		n, err := env.Count()
		if err != nil {
			return err
		}
		c.members = n

	case protocol.EventParticipantLeft:
		id, err := env.ParticipantID()
		if err != nil {
			return err
		}
		c.cursors.Remove(id)

	default:
		c.logger.Debug("ignoring event", zap.String("event", string(env.Event)))
	}
	return nil
}

// Reconnected forgets the remote cursors and member count of the previous
// connection. The relay sends a fresh count on join; cursors reappear as
// peers move.
func (c *Client) Reconnected() {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursors = presence.NewCursors()
	c.members = 0
}

// Accessors

func (c *Client) Shapes() shape.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shapes.Clone()
}

func (c *Client) Step() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Step()
}

func (c *Client) HistoryLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Len()
}

// HistoryAt returns a copy of history entry i.
func (c *Client) HistoryAt(i int) shape.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.At(i)
}

func (c *Client) CanUndo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.drawing && c.history.CanUndo()
}

func (c *Client) CanRedo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.drawing && c.history.CanRedo()
}

func (c *Client) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

func (c *Client) Drawing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drawing
}

func (c *Client) Tool() Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tool
}

func (c *Client) Cursors() map[string]presence.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursors.All()
}

func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

func (c *Client) Members() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.members
}

// internals, called with mu held

func (c *Client) emitShapes() {
	c.emit(protocol.EventShapesUpdate, c.shapes.Clone())
}

func (c *Client) emit(event protocol.Event, payload any) {
	if c.conn == nil {
		return
	}
	if err := c.conn.Emit(event, payload); err != nil {
		c.logger.Warn("emit failed", zap.String("event", string(event)), zap.Error(err))
	}
}

func (c *Client) dropStaleSelection() {
	if c.selected != "" && c.shapes.IndexOf(c.selected) < 0 {
		c.selected = ""
	}
}

func (c *Client) style() shape.Style {
	switch c.tool {
	case ToolPencil:
		return shape.Style{Color: c.color, StrokeWidth: c.pencilSize}
	case ToolEraser:
		return shape.Style{Color: eraserColor, StrokeWidth: c.eraserSize, Erase: true}
	default:
		return shape.Style{Color: c.color, StrokeWidth: shapeStrokeWidth}
	}
}

func (c *Client) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}

func (t Tool) kind() shape.Kind {
	switch t {
	case ToolRectangle:
		return shape.KindRectangle
	case ToolEllipse:
		return shape.KindEllipse
	default:
		return shape.KindFreehand
	}
}

func (t Tool) valid() bool {
	switch t {
	case ToolSelect, ToolPencil, ToolRectangle, ToolEllipse, ToolEraser:
		return true
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

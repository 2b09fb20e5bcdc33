package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/klauspost/compress/gzhttp"

	"stopboard.dev/gtfs"
	"stopboard.dev/gtfs/display"
)

const (
	DefaultStopIDTemplate = "U%sZ2"
	DefaultCount          = 2
	DefaultBoardInterval  = 30 * time.Second

	// Upper bound for ?count= on the departures endpoint
	MaxCount = 100
)

type Options struct {
	// Expands the numeric id of /api/stop/:id, e.g. "U%sZ2"
	StopIDTemplate string
	DefaultCount   int
	BoardInterval  time.Duration
}

// HTTP front end for an Engine. Board may be nil, in which case the
// board endpoints respond 404.
type Server struct {
	engine  *gtfs.Engine
	board   *display.Board
	options Options
	logger  *slog.Logger

	// Cancelled by Close, ends open board streams
	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(engine *gtfs.Engine, board *display.Board, options Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if options.StopIDTemplate == "" {
		options.StopIDTemplate = DefaultStopIDTemplate
	}
	if options.DefaultCount < 1 {
		options.DefaultCount = DefaultCount
	}
	if options.BoardInterval <= 0 {
		options.BoardInterval = DefaultBoardInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		engine:  engine,
		board:   board,
		options: options,
		logger:  logger.With("component", "http_server"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Closes open board streams. http.Server.Shutdown doesn't track
// websocket connections, so register this with RegisterOnShutdown.
func (s *Server) Close() {
	s.cancel()
}

func (s *Server) Handler() http.Handler {
	gzip, err := gzhttp.NewWrapper(
		gzhttp.MinSize(1024),
		gzhttp.CompressionLevel(6),
	)
	if err != nil {
		// Only fails on invalid options
		panic(err)
	}

	router := httprouter.New()
	router.Handler(http.MethodGet, "/api/stop/:id", gzip(http.HandlerFunc(s.stopHandler)))
	router.Handler(http.MethodGet, "/api/departures/:stop_id", gzip(http.HandlerFunc(s.departuresHandler)))
	router.Handler(http.MethodGet, "/api/board", gzip(http.HandlerFunc(s.boardHandler)))
	router.HandlerFunc(http.MethodGet, "/api/board/ws", s.boardStreamHandler)
	router.HandlerFunc(http.MethodGet, "/healthz", s.healthzHandler)
	router.HandlerFunc(http.MethodGet, "/readyz", s.readyzHandler)

	return NewRequestLoggingMiddleware(s.logger)(router)
}

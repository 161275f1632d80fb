package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"pixelstack/editor"
	"pixelstack/handlers/api/projects"
	"pixelstack/handlers/api/sessions"
	"pixelstack/handlers/auth"
	authMiddleware "pixelstack/middleware"
	"pixelstack/renderer/openai"
	"pixelstack/stores"
)

func setupRouter(store stores.Store, manager *editor.Manager, notify sessions.Notifier) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "X-CSRF-Token", "Origin", "Host", "Connection", "Accept-Encoding", "Accept-Language", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.AuthJWT)

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", projects.HandleList(store))
				r.Post("/", projects.HandleSave(store, manager))
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", projects.HandleGet(store))
					r.Delete("/", projects.HandleDelete(store))
				})
			})

			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", sessions.HandleCreate(manager, store, projects.UserID))
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", sessions.HandleGet(manager))
					r.Delete("/", sessions.HandleClose(manager))

					r.Post("/layers", sessions.HandleAppendLayer(manager, notify))
					r.Put("/layers/order", sessions.HandleReorderLayers(manager, notify))
					r.Delete("/layers/{layerID}", sessions.HandleRemoveLayer(manager, notify))
					r.Post("/layers/{layerID}/toggle", sessions.HandleToggleVisibility(manager, notify))

					r.Post("/undo", sessions.HandleUndo(manager, notify))
					r.Post("/redo", sessions.HandleRedo(manager, notify))
					r.Post("/history/jump", sessions.HandleJump(manager, notify))
					r.Post("/revert", sessions.HandleRevert(manager, notify))

					r.Post("/cache/clear", sessions.HandleClearCache(manager))
					r.Put("/masks", sessions.HandleSelectMasks(manager))
					r.Post("/render", sessions.HandleRender(manager, notify))
					r.Post("/styles", sessions.HandleSaveStyle(manager))
				})
			})
		})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", auth.HandleLogin)
		r.Get("/callback", auth.HandleCallback)
	})

	return r
}

// setupSocketIO opens a room per editing session. Viewers join with the
// session id and receive stack-change events whenever an edit commits.
func setupSocketIO() *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetPath("/socket.io")
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})
	io := socketio.NewServer(nil, opts)

	io.On("connection", func(clients ...any) {
		socket := clients[0].(*socketio.Socket)
		socket.On("join-session", func(datas ...any) {
			sessionID, ok := datas[0].(string)
			if !ok {
				return
			}
			logrus.WithFields(logrus.Fields{
				"socket_id":  socket.Id(),
				"session_id": sessionID,
			}).Debug("Socket joined session room")
			socket.Join(socketio.Room(sessionID))
		})
		socket.On("leave-session", func(datas ...any) {
			if sessionID, ok := datas[0].(string); ok {
				socket.Leave(socketio.Room(sessionID))
			}
		})
		socket.On("disconnect", func(datas ...any) {
			socket.RemoveAllListeners("")
		})
	})
	return io
}

func waitForShutdown(io *socketio.Server) {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-signalC

	logrus.Info("Shutting down...")
	io.Close(nil)
	os.Exit(0)
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":3002", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	auth.InitAuth()
	store := stores.GetStore()
	manager := editor.NewManager(openai.New())

	io := setupSocketIO()
	notify := func(sessionID string, version int) {
		io.To(socketio.Room(sessionID)).Emit("stack-change", map[string]any{
			"sessionId": sessionID,
			"version":   version,
		})
	}

	r := setupRouter(store, manager, notify)
	r.Mount("/socket.io/", io.ServeHandler(nil))

	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := http.ListenAndServe(*listenAddress, r); err != nil {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	waitForShutdown(io)
}

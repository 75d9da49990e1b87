package server

import (
	"ctchen222/blog-web-api/internal/api/controller"
	"ctchen222/blog-web-api/internal/api/response"
	"ctchen222/blog-web-api/internal/feed"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("server")

const infoMessage = "Visit the project website for usage information."

type Server struct {
	engine         *gin.Engine
	hub            *feed.Hub
	upgrader       websocket.Upgrader
	userController *controller.UserController
	postController *controller.PostController
}

func NewServer(hub *feed.Hub, userController *controller.UserController, postController *controller.PostController) *Server {
	s := &Server{
		engine: gin.New(),
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		userController: userController,
		postController: postController,
	}
	s.engine.Use(gin.Recovery())
	s.RegisterHandlers()
	return s
}

// Engine returns the gin engine serving every route.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterHandlers() {
	s.engine.GET("/", func(c *gin.Context) {
		response.SuccessResponse(c, gin.H{"message": infoMessage, "feed_clients": s.hub.ClientCount()})
	})

	user := s.engine.Group("/user")
	{
		user.POST("/create", s.userController.Create)
		user.POST("/login", s.userController.Login)
		user.POST("/remove", s.userController.Remove)
		user.POST("/change_password", s.userController.ChangePassword)
		user.POST("/invalidate_tokens", s.userController.InvalidateTokens)
		user.GET("/getall", s.userController.GetAll)
		user.GET("/random", s.userController.Random)
	}

	blog := s.engine.Group("/blog")
	{
		blog.POST("/add", s.postController.Add)
		blog.GET("/get/:blogId", s.postController.Get)
		blog.POST("/remove", s.postController.Remove)
		blog.POST("/update", s.postController.Update)
		blog.GET("/random", s.postController.Random)
		blog.GET("/getall", s.postController.GetAll)
		blog.GET("/feed", s.handleFeed)
		blog.GET("/:username/getall", s.postController.ByAuthor)
	}

	s.engine.NoRoute(func(c *gin.Context) {
		response.ErrorResponse(c, http.StatusNotFound, "Unknown route.")
	})
}

// handleFeed upgrades the connection and hands it to the feed hub until the
// client goes away.
func (s *Server) handleFeed(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "server.handleFeed", trace.WithAttributes(
		attribute.String("http.url", c.Request.URL.String()),
	))
	defer span.End()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(ctx, "Failed to upgrade connection", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to upgrade connection")
		return
	}

	s.hub.Serve(ctx, conn)
}

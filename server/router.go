package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"

	"github.com/Luismorlan/famfeed/engine"
	Logger "github.com/Luismorlan/famfeed/utils/log"
)

const writeTimeout = 10 * time.Second

// StateSource is satisfied by *engine.Engine.
type StateSource interface {
	Current() *engine.State
	StateChannels() *engine.StateChannels
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local consumers only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewRouter exposes the published state to local consumers such as the
// widget process.
func NewRouter(serviceName string, src StateSource) *gin.Engine {
	// Default With the Logger and Recovery middleware already attached
	router := gin.Default()

	router.Use(cors.Default())
	router.Use(gintrace.Middleware(serviceName))

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	router.GET("/state", StateHandler(src))
	router.GET("/subscribe", SubscribeHandler(src))
	return router
}

// StateHandler returns the latest published state.
func StateHandler(src StateSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, NewStateView(src.Current()))
	}
}

// SubscribeHandler upgrades to a websocket and streams every published state,
// starting with the current one. Slow clients skip intermediate states.
func SubscribeHandler(src StateSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			Logger.Log.Errorf("fail to upgrade state subscription: %v", err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		// The client never sends anything; reading only notices it leaving.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		states, chID := src.StateChannels().AddNewConnection(ctx)
		Logger.Log.WithField("connection", chID).Info("state subscriber connected")
		for s := range states {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(NewStateView(s)); err != nil {
				Logger.Log.WithField("connection", chID).Infof("state subscriber gone: %v", err)
				return
			}
		}
	}
}

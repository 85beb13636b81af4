package e2e

import (
	"chat-core/auth"
	"chat-core/domain"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type BaseWebsocketSuite struct {
	suite.Suite
	Config Config
}

type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// SetupSuite loads the environment configuration and skips without a target server
func (s *BaseWebsocketSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerURL == "" || s.Config.JWTSecret == "" {
		s.T().Skip("CHAT_SERVER_URL and JWT_SECRET are required for end-to-end tests")
	}
}

// Step prints a colorized header for one scenario step
func (s *BaseWebsocketSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Client is one authenticated connection driven by a scenario.
type Client struct {
	suite *BaseWebsocketSuite
	name  string
	ws    *websocket.Conn
}

// Dial connects as userID with a freshly signed token.
func (s *BaseWebsocketSuite) Dial(userID string) *Client {
	token, err := auth.NewTokenVerifier(s.Config.JWTSecret).
		GenerateToken(domain.Identity{UserID: domain.UserID(userID)}, 10*time.Minute)
	s.Require().NoError(err)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, _, err := websocket.DefaultDialer.Dial(s.Config.ServerURL, header)
	s.Require().NoError(err, "Failed to connect to "+s.Config.ServerURL)
	s.T().Cleanup(func() { _ = ws.Close() })
	return &Client{suite: s, name: userID, ws: ws}
}

func (c *Client) Send(name string, data any) {
	f := map[string]any{"event": name, "data": data}
	c.dump(">>", f)
	c.suite.Require().NoError(c.ws.WriteJSON(f))
}

// Expect skips frames until one named name arrives and decodes its data into out.
func (c *Client) Expect(name string, out any) {
	_ = c.ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f Frame
		c.suite.Require().NoError(c.ws.ReadJSON(&f), "%s waited for %s", c.name, name)
		c.dump("<<", f)
		if f.Event == name {
			if out != nil {
				c.suite.Require().NoError(json.Unmarshal(f.Data, out))
			}
			return
		}
	}
}

func (c *Client) Close() {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = c.ws.Close()
}

func (c *Client) dump(direction string, v any) {
	if !c.suite.Config.DebugJSON {
		return
	}
	body, _ := json.MarshalIndent(v, "", "  ")
	c.suite.T().Logf("%s %s %s", c.name, direction, body)
}

// ws_bridge exposes a stdio-based parley process (typically running in
// ACP mode) over a WebSocket so web front ends can drive it. Each
// connection gets its own agent subprocess; stdout and stderr lines are
// forwarded as typed JSON messages and incoming messages are written to
// the subprocess's stdin.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type bridgeMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func main() {
	argsWithoutCommand := os.Args[1:]
	if len(argsWithoutCommand) == 0 {
		log.Fatal("usage: ws_bridge <agent-command> [args...]")
	}
	http.HandleFunc("/ws", handleWS(argsWithoutCommand))

	fmt.Println("WebSocket server running on ws://localhost:8080/ws")
	log.Fatal(http.ListenAndServe(":8080", nil))
}

func handleWS(cmdArgs []string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("Upgrade error:", err)
			return
		}
		defer conn.Close()

		// One agent subprocess per connection
		cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			log.Println("Error getting stdin:", err)
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			log.Println("Error getting stdout:", err)
			return
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			log.Println("Error getting stderr:", err)
			return
		}

		if err := cmd.Start(); err != nil {
			log.Println("Error starting agent:", err)
			return
		}
		defer cmd.Process.Kill()

		// Pipe agent stdout → WebSocket
		go forwardLines(conn, stdout, "stdout")

		// Pipe agent stderr → WebSocket
		go forwardLines(conn, stderr, "stderr")

		// Pipe WebSocket messages → agent stdin
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.Println("WS read error:", err)
				return
			}
			if _, err := stdin.Write(append(msg, '\n')); err != nil {
				log.Println("Stdin write error:", err)
				return
			}
		}
	}
}

func forwardLines(conn *websocket.Conn, r interface{ Read([]byte) (int, error) }, kind string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		payload, err := json.Marshal(bridgeMessage{Type: kind, Data: scanner.Text()})
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Println("WS write error:", err)
			return
		}
	}
}

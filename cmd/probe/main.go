// Command probe is a manual test client for the voice bridge. It mints a
// token with the local JWT secret, runs the authenticate handshake against a
// chosen endpoint and prints every frame the server sends. Optionally it
// pushes a problem and streams a raw 16kHz PCM file as binary frames.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"mentor-voice/auth"
	"mentor-voice/messages"
)

func main() {
	var (
		serverURL = flag.String("url", "ws://localhost:8080", "server base URL")
		mode      = flag.String("mode", "tutor", "endpoint: tutor, learn or briefing")
		secret    = flag.String("secret", os.Getenv("JWT_SECRET"), "JWT secret to mint a token with")
		userID    = flag.String("user", "probe-user", "user id for the minted token")
		subject   = flag.String("subject", "math", "tutor: topic subject")
		skill     = flag.String("skill", "fractions", "tutor: topic skill")
		packageID = flag.String("package", "", "learn: content package id")
		studentID = flag.String("student", "", "briefing: student id (defaults to token user)")
		question  = flag.String("question", "", "tutor: send a new_problem with this question")
		pcmFile   = flag.String("pcm", "", "stream this raw 16kHz mono PCM file as audio")
	)
	flag.Parse()

	if *secret == "" {
		log.Fatal("no JWT secret: pass -secret or set JWT_SECRET")
	}

	token, err := auth.NewVerifier(*secret).MintToken(*userID, "student", time.Hour)
	if err != nil {
		log.Fatalf("minting token: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL+"/ws/"+*mode, nil)
	if err != nil {
		log.Fatalf("dialing: %v", err)
	}
	defer conn.Close()

	authFrame := map[string]interface{}{"type": "authenticate", "token": token}
	switch *mode {
	case "tutor":
		authFrame["topic_context"] = map[string]string{"subject": *subject, "skill": *skill}
	case "learn":
		authFrame["package_id"] = *packageID
	case "briefing":
		if *studentID != "" {
			authFrame["student_id"] = *studentID
		}
	}
	if err := conn.WriteJSON(authFrame); err != nil {
		log.Fatalf("sending authenticate: %v", err)
	}

	// print frames until the server closes or we are interrupted
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				log.Printf("connection closed: %v", err)
				return
			}
			printFrame(data)
		}
	}()

	if *question != "" {
		frame := map[string]interface{}{
			"type": "new_problem",
			"problem_context": map[string]interface{}{
				"problem_data": map[string]interface{}{"question": *question},
			},
		}
		if err := conn.WriteJSON(frame); err != nil {
			log.Fatalf("sending problem: %v", err)
		}
	}

	if *pcmFile != "" {
		go streamPCM(conn, *pcmFile)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case <-done:
	case <-interrupt:
		log.Println("interrupted, closing")
		_ = conn.WriteJSON(map[string]string{"type": "end_conversation"})
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}
}

func printFrame(data []byte) {
	var msg messages.ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("unparseable frame: %s", data)
		return
	}
	switch msg.Type {
	case messages.TypeAIAudio:
		fmt.Printf("[%s] %d base64 bytes (%s)\n", msg.Type, len(msg.Data), msg.MimeType)
	case messages.TypeError:
		fmt.Printf("[%s] %s: %s\n", msg.Type, msg.Code, msg.Message)
	default:
		fmt.Printf("[%s] %s\n", msg.Type, msg.Text)
	}
}

// streamPCM sends the file in 100ms chunks, pacing like a live microphone.
func streamPCM(conn *websocket.Conn, path string) {
	pcm, err := os.ReadFile(path)
	if err != nil {
		log.Printf("reading %s: %v", path, err)
		return
	}

	const chunk = messages.IngressSampleRate * 2 / 10 // 100ms of 16-bit samples
	for off := 0; off < len(pcm); off += chunk {
		end := off + chunk
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[off:end]); err != nil {
			log.Printf("streaming audio: %v", err)
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	log.Printf("streamed %d bytes of audio", len(pcm))
}

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"sniper/internal/control"
	"sniper/internal/telemetry"
)

// Управление запущенным sniper через websocket телеметрии:
// start/stop сессии и просмотр статусов и лога.
func main() {
	fs := pflag.NewFlagSet("status_manager", pflag.ExitOnError)
	url := fs.String("url", "ws://localhost:8090/ws", "адрес websocket телеметрии sniper")
	configPath := fs.String("config-json", "", "JSON-файл со встроенным конфигом для start")
	follow := fs.Duration("follow", 3*time.Second, "сколько слушать ответ (0 = до Ctrl+C)")
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() < 1 {
		fmt.Println("Использование: status_manager [--url ws://host:port/ws] <команда>")
		fmt.Println("Команды:")
		fmt.Println("  start - запустить сессию (встроенный конфиг из --config-json)")
		fmt.Println("  stop  - остановить сессию")
		fmt.Println("  show  - показывать статусы и лог")
		return
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		log.Fatalf("Ошибка подключения к %s: %v", *url, err)
	}
	defer conn.Close()

	switch command := fs.Arg(0); command {
	case control.ActionStart:
		cmd := control.Command{Action: control.ActionStart}
		if *configPath != "" {
			raw, err := os.ReadFile(*configPath)
			if err != nil {
				log.Fatalf("Ошибка чтения %s: %v", *configPath, err)
			}
			if err := json.Unmarshal(raw, &cmd.Config); err != nil {
				log.Fatalf("Некорректный JSON в %s: %v", *configPath, err)
			}
		}
		send(conn, cmd)
	case control.ActionStop:
		send(conn, control.Command{Action: control.ActionStop})
	case "show":
		*follow = 0
	default:
		log.Fatalf("Неизвестная команда: %s", command)
	}

	watch(conn, *follow)
}

func send(conn *websocket.Conn, cmd control.Command) {
	if err := conn.WriteJSON(cmd); err != nil {
		log.Fatalf("Ошибка отправки команды: %v", err)
	}
	fmt.Printf("➡️ отправлено: %s\n", cmd.Action)
}

// watch печатает сообщения кроме превью до таймаута или Ctrl+C
func watch(conn *websocket.Conn, d time.Duration) {
	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt)
	go func() {
		<-interrupted
		conn.Close()
	}()
	if d > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(d))
	}

	for {
		var msg struct {
			Type telemetry.Kind `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case telemetry.KindPreview:
			continue
		case telemetry.KindStatus:
			var s telemetry.Status
			if err := json.Unmarshal(msg.Data, &s); err == nil {
				state := "⏹️"
				if s.IsRunning {
					state = "▶️"
				}
				fmt.Printf("%s %s %s\n", state, s.Message, s.SessionID)
				continue
			}
		}
		var text string
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			text = string(msg.Data)
		}
		fmt.Printf("[%s] %s\n", msg.Type, text)
	}
}

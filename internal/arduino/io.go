package arduino

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tarm/serial"
)

// AckResponse ответ прошивки на принятую команду
const AckResponse = "received"

// ErrResponseTimeout прошивка не ответила за отведенное время
var ErrResponseTimeout = errors.New("arduino response timeout")

// ErrNoReadTimeout порт без таймаута чтения блокирует Read навсегда
var ErrNoReadTimeout = errors.New("serial read timeout must be positive")

// InitializePort открывает последовательный порт. readTimeout > 0 нужен,
// чтобы ожидание ответа не зависало навсегда.
func InitializePort(name string, baud int, readTimeout time.Duration) (*serial.Port, error) {
	if readTimeout <= 0 {
		return nil, fmt.Errorf("порт %s: %w", name, ErrNoReadTimeout)
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: readTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия порта %s: %w", name, err)
	}
	return port, nil
}

func writeCommand(port io.Writer, message string) error {
	if _, err := port.Write([]byte(message)); err != nil {
		return fmt.Errorf("error writing to Arduino: %w", err)
	}
	return nil
}

// SendKeyDownToArduino нажимает и держит клавишу
func SendKeyDownToArduino(port io.Writer, key string) error {
	return writeCommand(port, fmt.Sprintf("key_down:%s\n", key))
}

// SendKeyUpToArduino отпускает клавишу
func SendKeyUpToArduino(port io.Writer, key string) error {
	return writeCommand(port, fmt.Sprintf("key_up:%s\n", key))
}

// SendCoordinatesToArduino перемещает курсор и кликает
func SendCoordinatesToArduino(port io.Writer, x, y int) error {
	return writeCommand(port, fmt.Sprintf("click:%d,%d\n", x, y))
}

// WaitForArduinoResponse читает одну строку ответа и сверяет ее с ожидаемой.
// Пустые чтения (таймаут порта) повторяются до истечения wait.
func WaitForArduinoResponse(port io.Reader, expectedResponse string, wait time.Duration) (string, error) {
	deadline := time.Now().Add(wait)
	var response []byte
	buf := make([]byte, 128)
	for {
		n, err := port.Read(buf)
		response = append(response, buf[:n]...)

		if i := bytes.IndexByte(response, '\n'); i >= 0 {
			line := strings.TrimSpace(string(response[:i]))
			if line == expectedResponse {
				return line, nil
			}
			return "", fmt.Errorf("unexpected response: '%s'", line)
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("error reading from Arduino: %w", err)
		}
		if n == 0 && time.Now().After(deadline) {
			return "", ErrResponseTimeout
		}
	}
}

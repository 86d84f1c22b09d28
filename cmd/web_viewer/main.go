package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"sniper/internal/config"
	"sniper/internal/database"
	"sniper/internal/ledger"
	"sniper/internal/logger"
)

//go:embed templates/*.html
var templatesFS embed.FS

const resultsPerPage = 20

// source откуда читается история
type source interface {
	ListEntries(ctx context.Context, f ledger.Filter) ([]ledger.Entry, int, error)
}

// fileSource читает ledger.json на каждый запрос: файл переписывается процессом sniper
type fileSource struct{ path string }

func (s fileSource) ListEntries(_ context.Context, f ledger.Filter) ([]ledger.Entry, int, error) {
	entries, err := ledger.Load(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []ledger.Entry{}, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	page, total := f.Apply(entries)
	return page, total, nil
}

type PageData struct {
	Entries     []ledger.Entry
	Source      string
	CurrentPage int
	TotalPages  int
	TotalCount  int
	HasPrev     bool
	HasNext     bool
	PrevPage    int
	NextPage    int
	SearchQuery string
	MinPrice    string
	MaxPrice    string
}

func main() {
	fs := pflag.NewFlagSet("web_viewer", pflag.ExitOnError)
	config.RegisterFlags(fs)
	addr := fs.String("addr", "", "адрес сервера (по умолчанию HOST:PORT из окружения или 0.0.0.0:8080)")
	_ = fs.Parse(os.Args[1:])

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("⚠️ .env не прочитан: %v", err)
	}

	loggerManager := logger.NewConsoleLogger(os.Stderr)
	loggerManager.SetLevel(logger.INFO)
	c, err := config.NewLoader(fs, loggerManager).Load(nil)
	if err != nil {
		log.Fatalf("Ошибка конфигурации: %v", err)
	}

	var src source = fileSource{path: c.Ledger.Path}
	srcName := "file " + c.Ledger.Path
	if c.Database.DSN != "" {
		db, err := database.Open(c.Database.Driver, c.Database.DSN)
		if err != nil {
			log.Fatalf("Ошибка подключения к базе данных: %v", err)
		}
		defer db.Close()
		src = database.NewDatabaseManager(db, c.Database.Driver, loggerManager)
		srcName = "database " + c.Database.Driver
		log.Printf("Успешно подключились к базе данных (%s)", c.Database.Driver)
	}

	tmpl, err := parseTemplates()
	if err != nil {
		log.Fatalf("Ошибка шаблонов: %v", err)
	}

	listen := *addr
	if listen == "" {
		listen = envOr("HOST", "0.0.0.0") + ":" + envOr("PORT", "8080")
	}

	fmt.Printf("🚀 web_viewer запущен на %s\n", listen)
	fmt.Printf("📊 Источник истории: %s\n", srcName)

	srv := &http.Server{Addr: listen, Handler: newHandler(src, srcName, tmpl), ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("Ошибка запуска сервера: %v", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parsePrice(s string) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func newHandler(src source, srcName string, tmpl *template.Template) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := 1
		if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
			page = p
		}

		data := PageData{
			Source:      srcName,
			SearchQuery: q.Get("search"),
			MinPrice:    q.Get("min_price"),
			MaxPrice:    q.Get("max_price"),
		}
		filter := ledger.Filter{
			Item:     strings.TrimSpace(data.SearchQuery),
			MinPrice: parsePrice(data.MinPrice),
			MaxPrice: parsePrice(data.MaxPrice),
			Limit:    resultsPerPage,
			Offset:   (page - 1) * resultsPerPage,
		}

		entries, total, err := src.ListEntries(r.Context(), filter)
		if err != nil {
			log.Printf("Ошибка чтения истории: %v", err)
			http.Error(w, "history error", http.StatusInternalServerError)
			return
		}

		// Вычисляем общее количество страниц
		totalPages := (total + resultsPerPage - 1) / resultsPerPage
		if totalPages == 0 {
			totalPages = 1
		}
		if page > totalPages {
			page = totalPages
			filter.Offset = (page - 1) * resultsPerPage
			if entries, total, err = src.ListEntries(r.Context(), filter); err != nil {
				http.Error(w, "history error", http.StatusInternalServerError)
				return
			}
		}

		data.Entries = entries
		data.CurrentPage = page
		data.TotalPages = totalPages
		data.TotalCount = total
		data.HasPrev = page > 1
		data.HasNext = page < totalPages
		data.PrevPage = page - 1
		data.NextPage = page + 1

		if err := tmpl.ExecuteTemplate(w, "layout.html", data); err != nil {
			http.Error(w, "Template execution error: "+err.Error(), http.StatusInternalServerError)
		}
	})
	return mux
}

func parseTemplates() (*template.Template, error) {
	return template.New("layout").Funcs(template.FuncMap{
		"formatPrice": func(price *float64) string {
			if price == nil {
				return "-"
			}
			return formatPrice(*price)
		},
		"formatConfidence": func(c *float64) string {
			if c == nil {
				return ""
			}
			return fmt.Sprintf("%.0f%%", *c*100)
		},
		"sequence": func(current, total int) []int {
			var pages []int
			start := max(current-2, 1)
			end := min(current+2, total)
			for i := start; i <= end; i++ {
				pages = append(pages, i)
			}
			return pages
		},
	}).ParseFS(templatesFS, "templates/*.html")
}

// formatPrice пробелы между разрядами, дробная часть только если есть
func formatPrice(v float64) string {
	whole := int64(math.Trunc(v))
	digits := strconv.FormatInt(whole, 10)
	neg := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	var result strings.Builder
	for i, char := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			result.WriteByte(' ')
		}
		result.WriteRune(char)
	}
	out := result.String()
	if neg {
		out = "-" + out
	}
	if frac := math.Abs(v - math.Trunc(v)); frac > 1e-9 {
		out += strings.TrimPrefix(strconv.FormatFloat(frac, 'f', -1, 64), "0")
	}
	return out
}

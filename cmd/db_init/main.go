package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"sniper/internal/config"
	"sniper/internal/database"
	"sniper/internal/ledger"
	"sniper/internal/logger"
)

func main() {
	fs := pflag.NewFlagSet("db_init", pflag.ExitOnError)
	config.RegisterFlags(fs)
	importLedger := fs.Bool("import", false, "перенести записи из файла истории в таблицу")
	_ = fs.Parse(os.Args[1:])

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("⚠️ .env не прочитан: %v", err)
	}

	loggerManager := logger.NewConsoleLogger(os.Stderr)
	c, err := config.NewLoader(fs, loggerManager).Load(nil)
	if err != nil {
		log.Fatalf("Ошибка конфигурации: %v", err)
	}
	if c.Database.DSN == "" {
		log.Fatal("database.dsn не задан (SNIPER_DATABASE_DSN или config.yaml)")
	}

	db, err := database.Open(c.Database.Driver, c.Database.DSN)
	if err != nil {
		log.Fatalf("Ошибка подключения: %v", err)
	}
	defer db.Close()

	dbManager := database.NewDatabaseManager(db, c.Database.Driver, loggerManager)
	if err := dbManager.EnsureSchema(); err != nil {
		log.Fatal(err)
	}
	fmt.Println("Таблица transactions создана")

	if *importLedger {
		entries, err := ledger.Load(c.Ledger.Path)
		if err != nil {
			log.Fatalf("Ошибка чтения истории %s: %v", c.Ledger.Path, err)
		}
		n, err := dbManager.ImportEntries(entries)
		if err != nil {
			log.Fatalf("Ошибка импорта: %v", err)
		}
		fmt.Printf("Импортировано записей: %d из %d\n", n, len(entries))
	}

	fmt.Println("Инициализация базы завершена!")
}

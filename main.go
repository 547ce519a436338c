package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"backend_rentio/config"
	"backend_rentio/database"
	"backend_rentio/services"
)

// initDB инициализирует подключение к базе данных
func initDB() {
	log.Println("🔧 Инициализация базы данных...")

	// Создаем базу данных, если она не существует
	if err := database.CreateDatabaseIfNotExists(); err != nil {
		log.Fatal("❌ Ошибка при создании базы данных:", err)
	}

	// Подключаемся к базе данных
	if err := database.ConnectDatabase(); err != nil {
		log.Fatal("❌ Ошибка подключения к базе данных:", err)
	}

	log.Println("✅ База данных успешно инициализирована")
}

func main() {
	// Загружаем конфигурацию (включая .env файл)
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("❌ Ошибка загрузки конфигурации:", err)
	}

	// Инициализируем базу данных
	initDB()

	// Подключаемся к Redis (кэш прогнозов работает и без него)
	if err := database.InitRedis(); err != nil {
		log.Printf("⚠️  Redis недоступен, кэширование прогнозов отключено: %v", err)
	}

	logger := log.New(os.Stdout, "[rentio] ", log.LstdFlags)
	db := database.GetDB()

	// Workflow-сервисы движка конструируются контроллерным слоем; этот
	// процесс отвечает за миграции и периодический мониторинг парка
	eventService := services.NewEventService(db, "rental-engine", logger)
	monitorService := services.NewMonitorService(db, eventService, logger)

	// Планируем периодические проверки парка
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Rental.MonitorSchedule, monitorService.RunPeriodicChecks); err != nil {
		log.Fatal("❌ Ошибка планирования периодических проверок:", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	log.Printf("🚀 Движок аренды запущен (окружение: %s)", cfg.App.Env)

	// Ожидаем сигнал завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Завершение работы движка аренды...")
}

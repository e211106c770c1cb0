package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"telegram-mention-bot/internal/pkg/config"
)

// MentionRunner определяет интерфейс конвейера, который выполняет
// один запуск рассылки упоминаний для чата.
type MentionRunner interface {
	Run(ctx context.Context, chatName string) (string, error)
}

// HealthChecker определяет интерфейс сессии, чью работоспособность
// можно проверить легковесным запросом.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server представляет HTTP-сервер
type Server struct {
	HTTPServer *http.Server
	cfg        *config.Config
	taskStore  *TaskStore
	runner     MentionRunner
	sessions   []HealthChecker

	// runLocks сериализует запуски по имени чата: параллельные запуски
	// с одним и тем же ключом хранения небезопасны (гонка на файле таблицы).
	runMu    sync.Mutex
	runLocks map[string]*sync.Mutex
}

// New создает новый экземпляр Server.
// sessions — сессии Telegram, состояние которых отражает /health.
func New(cfg *config.Config, runner MentionRunner, taskStore *TaskStore, sessions ...HealthChecker) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		taskStore: taskStore,
		runner:    runner,
		sessions:  sessions,
		runLocks:  make(map[string]*sync.Mutex),
	}

	chiRouter := chi.NewRouter()

	// Промежуточное ПО
	chiRouter.Use(middleware.Logger)
	chiRouter.Use(middleware.Recoverer)

	// Конечная точка для проверки работоспособности
	chiRouter.Get("/health", s.handleHealth)

	// Маршруты API
	chiRouter.Route("/api/v1", func(r chi.Router) {
		// Конечная точка для запуска новой задачи рассылки
		r.Post("/mentions", s.handleCreateTask)
		// Конечная точка для проверки статуса задачи
		r.Get("/tasks/{taskID}", s.handleTaskStatus)
		// Конечная точка для получения результата задачи
		r.Get("/tasks/{taskID}/result", s.handleTaskResult)
	})

	s.HTTPServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      chiRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// handleHealth опрашивает обе сессии Telegram легковесным запросом.
// Если хотя бы одна сессия нездорова (например, из-за активного
// FLOOD_WAIT), возвращается 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	for _, session := range s.sessions {
		if err := session.Health(r.Context()); err != nil {
			slog.Warn("Health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "degraded",
			})
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// handleCreateTask принимает имя чата и запускает рассылку в фоне.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatName string `json:"chat_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Не удалось декодировать тело запроса", http.StatusBadRequest)
		return
	}
	if req.ChatName == "" {
		http.Error(w, "Требуется chat_name", http.StatusBadRequest)
		return
	}

	// Генерация уникального идентификатора задачи
	taskID := uuid.NewString()
	s.taskStore.CreateTask(taskID, req.ChatName, 24*time.Hour) // TTL для записи о задаче

	// Запуск конвейера в горутине
	go func() {
		// Запуски для одного чата выполняются строго по очереди.
		lock := s.lockFor(req.ChatName)
		lock.Lock()
		defer lock.Unlock()

		s.taskStore.UpdateTaskStatus(taskID, TaskStatusProcessing)

		mentions, err := s.runner.Run(context.Background(), req.ChatName)
		if err != nil {
			slog.Error("Mention run failed", "task_id", taskID, "chat_name", req.ChatName, "error", err)
			s.taskStore.UpdateTaskError(taskID, err.Error())
			return
		}

		s.taskStore.UpdateTaskResult(taskID, mentions)
	}()

	// Возврат идентификатора задачи
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"task_id": taskID})
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	task, err := s.taskStore.GetTask(taskID)
	if err != nil {
		http.Error(w, "Задача не найдена", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"task_id":       task.ID,
		"chat_name":     task.ChatName,
		"status":        task.Status,
		"error_message": task.ErrorMessage,
	})
}

func (s *Server) handleTaskResult(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	task, err := s.taskStore.GetTask(taskID)
	if err != nil {
		http.Error(w, "Задача не найдена", http.StatusNotFound)
		return
	}

	if task.Status != TaskStatusCompleted {
		http.Error(w, "Задача не завершена", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"task_id":  task.ID,
		"mentions": task.Mentions,
	})
}

// lockFor возвращает мьютекс запусков для имени чата, создавая его при необходимости.
func (s *Server) lockFor(chatName string) *sync.Mutex {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	lock, ok := s.runLocks[chatName]
	if !ok {
		lock = &sync.Mutex{}
		s.runLocks[chatName] = lock
	}
	return lock
}

// ListenAndServe запускает HTTP-сервер
func (s *Server) ListenAndServe() error {
	return s.HTTPServer.ListenAndServe()
}

// Shutdown корректно завершает работу HTTP-сервера
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Завершение работы HTTP-сервера")
	return s.HTTPServer.Shutdown(ctx)
}

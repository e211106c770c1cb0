// Package roster хранит таблицы участников чатов в CSV-файлах,
// по одному файлу на чат. Ключом хранения служит числовой идентификатор
// чата: отображаемые имена могут содержать символы, небезопасные для
// файловой системы, и не годятся в качестве имен файлов.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"telegram-mention-bot/internal/domain"
	"telegram-mention-bot/internal/ports"
)

// header — схема таблицы. Порядок строк в файле значим: он определяет
// порядок упоминаний в итоговом сообщении.
var header = []string{"id", "full_name", "tg_username"}

// Store реализует ports.RosterStore поверх каталога с CSV-файлами.
type Store struct {
	dir string
}

// NewStore создает хранилище таблиц в указанном каталоге.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

var _ ports.RosterStore = (*Store)(nil)

// Path возвращает путь к файлу таблицы для чата.
func (s *Store) Path(chatID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.csv", chatID))
}

// Exists сообщает, существует ли файл таблицы для чата.
// Возраст, валидность и полнота файла не проверяются: это оптимизация,
// а не механизм корректности — битый файл от прерванного экспорта будет
// принят за валидный, и только ошибки десериализации при построении
// упоминаний его отловят.
func (s *Store) Exists(chatID int64) bool {
	_, err := os.Stat(s.Path(chatID))
	return err == nil
}

// Create создает файл таблицы и записывает заголовок.
// Существующий файл перезаписывается: повторный экспорт полностью
// заменяет предыдущий снимок.
func (s *Store) Create(chatID int64) (ports.RecordWriter, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: не удалось создать каталог %s: %w", domain.ErrStorage, s.dir, err)
	}

	path := s.Path(chatID)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: не удалось создать файл %s: %w", domain.ErrStorage, path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: не удалось записать заголовок в %s: %w", domain.ErrStorage, path, err)
	}

	return &recordWriter{f: f, w: w, path: path}, nil
}

// Open открывает существующую таблицу и проверяет ее заголовок.
func (s *Store) Open(chatID int64) (ports.RecordReader, error) {
	path := s.Path(chatID)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: не удалось открыть файл %s: %w", domain.ErrRecordRead, path, err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)

	got, err := r.Read()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: не удалось прочитать заголовок %s: %w", domain.ErrRecordRead, path, err)
	}
	for i := range header {
		if got[i] != header[i] {
			_ = f.Close()
			return nil, fmt.Errorf("%w: неожиданный заголовок %v в %s", domain.ErrRecordRead, got, path)
		}
	}

	return &recordReader{f: f, r: r, path: path}, nil
}

// recordWriter пишет записи инкрементально, по мере поступления участников.
// В памяти удерживается не более одной записи.
type recordWriter struct {
	f    *os.File
	w    *csv.Writer
	path string
}

// Write добавляет одну запись в таблицу.
func (w *recordWriter) Write(m domain.Member) error {
	row := []string{strconv.FormatInt(m.ID, 10), m.FullName, m.Username}
	if err := w.w.Write(row); err != nil {
		return fmt.Errorf("%w: не удалось записать строку в %s: %w", domain.ErrStorage, w.path, err)
	}
	return nil
}

// Close сбрасывает буферы и закрывает файл.
// При ошибке посреди экспорта файл остается в частично записанном
// состоянии — вызывающая сторона не должна предполагать, что неудавшийся
// экспорт не оставил файла.
func (w *recordWriter) Close() error {
	w.w.Flush()
	flushErr := w.w.Error()
	closeErr := w.f.Close()
	if flushErr != nil {
		return fmt.Errorf("%w: не удалось сбросить буфер %s: %w", domain.ErrStorage, w.path, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: не удалось закрыть файл %s: %w", domain.ErrStorage, w.path, closeErr)
	}
	return nil
}

type recordReader struct {
	f    *os.File
	r    *csv.Reader
	path string
}

// Read возвращает следующую запись в порядке файла. Любая строка,
// не прошедшая валидацию схемы, прерывает чтение целиком.
func (r *recordReader) Read() (domain.Member, error) {
	row, err := r.r.Read()
	if errors.Is(err, io.EOF) {
		return domain.Member{}, io.EOF
	}
	if err != nil {
		return domain.Member{}, fmt.Errorf("%w: некорректная строка в %s: %w", domain.ErrRecordRead, r.path, err)
	}

	id, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return domain.Member{}, fmt.Errorf("%w: некорректный id %q в %s: %w", domain.ErrRecordRead, row[0], r.path, err)
	}

	return domain.Member{
		ID:       id,
		FullName: row[1],
		Username: row[2],
	}, nil
}

func (r *recordReader) Close() error {
	return r.f.Close()
}

package integration

import (
	"os/exec"
	"path/filepath"
	"testing"
)

func TestEndToEndWithRealBinary(t *testing.T) {
	tempDir := t.TempDir()

	// Собираем бинарные файлы
	for _, target := range []string{"./cmd/mention", "./cmd/server", "./cmd/client"} {
		buildCmd := exec.Command("go", "build", "-o", filepath.Join(tempDir, filepath.Base(target)), target)
		buildCmd.Dir = "../.."
		if err := buildCmd.Run(); err != nil {
			t.Skipf("Пропускаем сквозной тест: не удалось собрать %s: %v", target, err)
		}
	}

	// Примечание: Мы не можем запустить бинарные файлы с реальными учетными данными API в тесте
	// Поэтому этот тест в основном проверяет, что бинарные файлы собираются корректно
	t.Log("Бинарные файлы для сквозного теста успешно собраны")
}

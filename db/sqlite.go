package db

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var database *sql.DB

// InitDB initializes the SQLite database
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", path)
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS models (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name VARCHAR(50) NOT NULL,
        version INTEGER NOT NULL,
        payload TEXT NOT NULL,
        trained_at DATETIME NOT NULL,
        UNIQUE(name, version)
    );
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY,
        model_name VARCHAR(50),
        accuracy REAL,
        loss REAL,
        trained_at DATETIME,
        data_points INTEGER
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50),
        predicted_label INTEGER,
        confidence REAL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    `

	_, err = database.Exec(query)
	return err
}

// Close releases the database handle.
func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

// ModelInfo is one row of the model registry.
type ModelInfo struct {
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	TrainedAt time.Time `json:"trained_at"`
}

// SaveModel stores a serialized model under the next version number and
// returns that version.
func SaveModel(name string, payload []byte) (int, error) {
	if database == nil {
		return 0, errors.New("database not initialized")
	}
	tx, err := database.Begin()
	if err != nil {
		return 0, err
	}

	var version int
	err = tx.QueryRow(`SELECT COALESCE(MAX(version), 0) + 1 FROM models WHERE name = ?`, name).Scan(&version)
	if err != nil {
		tx.Rollback()
		return 0, err
	}

	_, err = tx.Exec(`
        INSERT INTO models (name, version, payload, trained_at)
        VALUES (?, ?, ?, ?)`,
		name, version, string(payload), time.Now())
	if err != nil {
		tx.Rollback()
		return 0, err
	}

	return version, tx.Commit()
}

// LoadLatestModel returns the newest stored payload for a model name.
func LoadLatestModel(name string) ([]byte, int, error) {
	if database == nil {
		return nil, 0, errors.New("database not initialized")
	}
	var payload string
	var version int
	err := database.QueryRow(`
        SELECT payload, version
        FROM models
        WHERE name = ?
        ORDER BY version DESC
        LIMIT 1`, name).Scan(&payload, &version)
	if err != nil {
		return nil, 0, err
	}
	return []byte(payload), version, nil
}

// ListModels returns the newest version of every stored model.
func ListModels() ([]ModelInfo, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := database.Query(`
        SELECT name, MAX(version), trained_at
        FROM models
        GROUP BY name
        ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []ModelInfo
	for rows.Next() {
		var m ModelInfo
		if err := rows.Scan(&m.Name, &m.Version, &m.TrainedAt); err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

// LogTraining records one training run.
func LogTraining(modelName string, accuracy, loss float64, dataPoints int) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	_, err := database.Exec(`
        INSERT INTO training_log (model_name, accuracy, loss, trained_at, data_points)
        VALUES (?, ?, ?, ?, ?)`,
		modelName, accuracy, loss, time.Now(), dataPoints)
	return err
}

// SavePredictions appends served predictions for later auditing.
func SavePredictions(modelName string, labels []int, confidences []float64) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	if len(labels) != len(confidences) {
		return errors.New("labels/confidences length mismatch")
	}
	tx, err := database.Begin()
	if err != nil {
		return err
	}
	for i := range labels {
		_, err = tx.Exec(`
            INSERT INTO predictions (model_name, predicted_label, confidence)
            VALUES (?, ?, ?)`,
			modelName, labels[i], confidences[i])
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// TrainingHistory returns the most recent training runs for a model.
func TrainingHistory(modelName string, limit int) ([]map[string]interface{}, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := database.Query(`
        SELECT accuracy, loss, trained_at, data_points
        FROM training_log
        WHERE model_name = ?
        ORDER BY trained_at DESC
        LIMIT ?`, modelName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []map[string]interface{}
	for rows.Next() {
		var accuracy, loss float64
		var trainedAt time.Time
		var dataPoints int
		if err := rows.Scan(&accuracy, &loss, &trainedAt, &dataPoints); err != nil {
			return nil, err
		}
		history = append(history, map[string]interface{}{
			"accuracy":    accuracy,
			"loss":        loss,
			"trained_at":  trainedAt,
			"data_points": dataPoints,
		})
	}
	return history, rows.Err()
}

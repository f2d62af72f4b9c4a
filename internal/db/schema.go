package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"batchpurge/internal/purge"
)

// batchSchema is the Spring Batch history schema, reduced to the columns
// the batch engine writes on every execution. Parents come first.
var batchSchema = []string{
	`CREATE TABLE IF NOT EXISTS %PREFIX%JOB_INSTANCE (
		JOB_INSTANCE_ID BIGINT NOT NULL PRIMARY KEY,
		VERSION BIGINT,
		JOB_NAME VARCHAR(100) NOT NULL,
		JOB_KEY VARCHAR(32) NOT NULL,
		UNIQUE (JOB_NAME, JOB_KEY)
	)`,
	`CREATE TABLE IF NOT EXISTS %PREFIX%JOB_EXECUTION (
		JOB_EXECUTION_ID BIGINT NOT NULL PRIMARY KEY,
		VERSION BIGINT,
		JOB_INSTANCE_ID BIGINT NOT NULL REFERENCES %PREFIX%JOB_INSTANCE (JOB_INSTANCE_ID),
		CREATE_TIME TIMESTAMP NOT NULL,
		START_TIME TIMESTAMP,
		END_TIME TIMESTAMP,
		STATUS VARCHAR(10),
		EXIT_CODE VARCHAR(2500),
		EXIT_MESSAGE VARCHAR(2500),
		LAST_UPDATED TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS %PREFIX%JOB_EXECUTION_PARAMS (
		JOB_EXECUTION_ID BIGINT NOT NULL REFERENCES %PREFIX%JOB_EXECUTION (JOB_EXECUTION_ID),
		PARAMETER_NAME VARCHAR(100) NOT NULL,
		PARAMETER_TYPE VARCHAR(100) NOT NULL,
		PARAMETER_VALUE VARCHAR(2500),
		IDENTIFYING CHAR(1) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS %PREFIX%JOB_EXECUTION_CONTEXT (
		JOB_EXECUTION_ID BIGINT NOT NULL PRIMARY KEY REFERENCES %PREFIX%JOB_EXECUTION (JOB_EXECUTION_ID),
		SHORT_CONTEXT VARCHAR(2500) NOT NULL,
		SERIALIZED_CONTEXT TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS %PREFIX%STEP_EXECUTION (
		STEP_EXECUTION_ID BIGINT NOT NULL PRIMARY KEY,
		VERSION BIGINT NOT NULL,
		STEP_NAME VARCHAR(100) NOT NULL,
		JOB_EXECUTION_ID BIGINT NOT NULL REFERENCES %PREFIX%JOB_EXECUTION (JOB_EXECUTION_ID),
		CREATE_TIME TIMESTAMP NOT NULL,
		START_TIME TIMESTAMP,
		END_TIME TIMESTAMP,
		STATUS VARCHAR(10),
		COMMIT_COUNT BIGINT,
		READ_COUNT BIGINT,
		WRITE_COUNT BIGINT,
		EXIT_CODE VARCHAR(2500),
		LAST_UPDATED TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS %PREFIX%STEP_EXECUTION_CONTEXT (
		STEP_EXECUTION_ID BIGINT NOT NULL PRIMARY KEY REFERENCES %PREFIX%STEP_EXECUTION (STEP_EXECUTION_ID),
		SHORT_CONTEXT VARCHAR(2500) NOT NULL,
		SERIALIZED_CONTEXT TEXT
	)`,
}

// EnsureBatchSchema creates any missing Spring Batch history table under
// prefix. Existing tables are left untouched.
func EnsureBatchSchema(ctx context.Context, db *gorm.DB, prefix string) error {
	if err := purge.ValidatePrefix(prefix); err != nil {
		return err
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, ddl := range batchSchema {
			if err := tx.Exec(purge.ExpandPrefix(ddl, prefix)).Error; err != nil {
				return fmt.Errorf("create batch schema: %w", err)
			}
		}
		return nil
	})
}

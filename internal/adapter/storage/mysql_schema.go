package storage

import (
	"context"
	"fmt"
	"strings"
)

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id   CHAR(36)     NOT NULL PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		UNIQUE KEY uq_categories_name (name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_0900_as_ci`,

	`CREATE TABLE IF NOT EXISTS articles (
		id          CHAR(36)     NOT NULL PRIMARY KEY,
		reference   VARCHAR(100) NOT NULL,
		name        VARCHAR(255) NOT NULL,
		description TEXT         NOT NULL,
		category_id CHAR(36)     NOT NULL,
		created_at  DATETIME(6)  NOT NULL,
		UNIQUE KEY uq_articles_reference (reference),
		KEY idx_articles_created_at (created_at),
		CONSTRAINT fk_articles_category FOREIGN KEY (category_id) REFERENCES categories (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_0900_as_ci`,

	`CREATE TABLE IF NOT EXISTS price_records (
		seq         BIGINT        NOT NULL AUTO_INCREMENT PRIMARY KEY,
		article_id  CHAR(36)      NOT NULL,
		price       DECIMAL(28,2) NOT NULL,
		inserted_at DATETIME(6)   NOT NULL,
		KEY idx_price_records_resolution (article_id, inserted_at, seq),
		CONSTRAINT fk_price_records_article FOREIGN KEY (article_id) REFERENCES articles (id) ON DELETE CASCADE,
		CONSTRAINT chk_price_records_price CHECK (price >= 0)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_0900_as_ci`,

	`CREATE TABLE IF NOT EXISTS taxes (
		reference VARCHAR(100) NOT NULL PRIMARY KEY,
		rate      DECIMAL(4,3) NOT NULL,
		CONSTRAINT chk_taxes_rate CHECK (rate >= 0 AND rate < 1)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_0900_as_ci`,

	`CREATE TABLE IF NOT EXISTS tax_assignments (
		seq           BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
		category_id   CHAR(36)     NOT NULL,
		tax_reference VARCHAR(100) NOT NULL,
		valid_from    DATETIME(6)  NOT NULL,
		KEY idx_tax_assignments_resolution (category_id, valid_from, seq),
		CONSTRAINT fk_tax_assignments_category FOREIGN KEY (category_id) REFERENCES categories (id),
		CONSTRAINT fk_tax_assignments_tax FOREIGN KEY (tax_reference) REFERENCES taxes (reference)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_0900_as_ci`,

	`CREATE TABLE IF NOT EXISTS stock_records (
		article_id CHAR(36)    NOT NULL PRIMARY KEY,
		quantity   INT         NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		CONSTRAINT fk_stock_records_article FOREIGN KEY (article_id) REFERENCES articles (id),
		CONSTRAINT chk_stock_records_quantity CHECK (quantity >= 0)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_0900_as_ci`,

	`CREATE TABLE IF NOT EXISTS stock_audit (
		seq        BIGINT      NOT NULL AUTO_INCREMENT PRIMARY KEY,
		article_id CHAR(36)    NOT NULL,
		event_at   DATETIME(6) NOT NULL,
		quantity   INT         NOT NULL,
		KEY idx_stock_audit_article (article_id, seq),
		CONSTRAINT fk_stock_audit_article FOREIGN KEY (article_id) REFERENCES articles (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_0900_as_ci`,

	`CREATE TABLE IF NOT EXISTS purchase_orders (
		id         CHAR(36)     NOT NULL PRIMARY KEY,
		reference  VARCHAR(100) NOT NULL,
		created_at DATETIME(6)  NOT NULL,
		created_by VARCHAR(255) NOT NULL,
		UNIQUE KEY uq_purchase_orders_reference (reference),
		KEY idx_purchase_orders_created_at (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_0900_as_ci`,

	`CREATE TABLE IF NOT EXISTS order_lines (
		order_id   CHAR(36) NOT NULL,
		article_id CHAR(36) NOT NULL,
		quantity   INT      NOT NULL,
		PRIMARY KEY (order_id, article_id),
		CONSTRAINT fk_order_lines_order FOREIGN KEY (order_id) REFERENCES purchase_orders (id),
		CONSTRAINT fk_order_lines_article FOREIGN KEY (article_id) REFERENCES stock_records (article_id),
		CONSTRAINT chk_order_lines_quantity CHECK (quantity > 0)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_0900_as_ci`,
}

const keyCollation = "utf8mb4_0900_as_ci"

// collatedTables share keyCollation so reference keys fold case but not
// accents and foreign key columns stay compatible.
var collatedTables = []string{
	"categories", "articles", "price_records", "taxes", "tax_assignments",
	"stock_records", "stock_audit", "purchase_orders", "order_lines",
}

// appendOnlyTables reject UPDATE and DELETE statements. Foreign key cascades
// do not fire triggers, so price records still disappear with their article.
var appendOnlyTables = []string{"price_records", "tax_assignments", "stock_audit"}

func appendOnlyTriggers() []string {
	var stmts []string
	for _, table := range appendOnlyTables {
		for _, event := range []string{"UPDATE", "DELETE"} {
			name := fmt.Sprintf("trg_%s_no_%s", table, strings.ToLower(event))
			stmts = append(stmts,
				fmt.Sprintf("DROP TRIGGER IF EXISTS %s", name),
				fmt.Sprintf("CREATE TRIGGER %s BEFORE %s ON %s FOR EACH ROW "+
					"SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = '%s is append-only'", name, event, table, table),
			)
		}
	}
	return stmts
}

// Migrate creates the tables and the append-only guards.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range append(schema, appendOnlyTriggers()...) {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return m.convertCollations(ctx)
}

// convertCollations moves tables created with an older collation onto
// keyCollation. Foreign key checks are off on the converting connection
// since referencing and referenced columns change one table at a time.
func (m *MySQLAdapter) convertCollations(ctx context.Context) error {
	var stale []string
	for _, table := range collatedTables {
		var collation string
		err := m.db.QueryRowContext(ctx, `
			SELECT TABLE_COLLATION FROM information_schema.TABLES
			WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`, table).Scan(&collation)
		if err != nil {
			return fmt.Errorf("migrate: collation of %s: %w", table, err)
		}
		if collation != keyCollation {
			stale = append(stale, table)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer conn.ExecContext(context.WithoutCancel(ctx), "SET FOREIGN_KEY_CHECKS = 1")

	for _, table := range stale {
		stmt := fmt.Sprintf("ALTER TABLE %s CONVERT TO CHARACTER SET utf8mb4 COLLATE %s", table, keyCollation)
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: convert %s: %w", table, err)
		}
	}
	return nil
}

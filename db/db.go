package db

import (
	"Gin_postgres_redis_loan_approval/models"
	"fmt"
	"log"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// DSNFromEnv prefers DATABASE_URL, otherwise builds a DSN from DB_* variables.
func DSNFromEnv() string {
	if u := os.Getenv("DATABASE_URL"); u != "" {
		return u
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)
}

func ConnectDB(dsn string) *gorm.DB {
	if dsn == "" {
		dsn = DSNFromEnv()
	}

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}

	if err = Migrate(DB); err != nil {
		log.Fatal("Failed to migrate models: ", err)
	}
	log.Println("Database connected")
	return DB
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{}, &models.RoleAssignment{},
		&models.Department{}, &models.Category{}, &models.Item{},
		&models.BorrowRequest{}, &models.RequestItem{},
		&models.LetterSequence{}, &models.RequestLog{}, &models.Notification{},
	); err != nil {
		return err
	}

	// 编号全局唯一；未审批的申请为 NULL
	if err := db.Exec(fmt.Sprintf(`
	  CREATE UNIQUE INDEX IF NOT EXISTS %s_letter_number_uniq
	  ON %s (letter_number)
	  WHERE letter_number IS NOT NULL;
	`, models.RequestTable, models.RequestTable)).Error; err != nil {
		return err
	}

	// 同一申请内同一物品只允许一行
	if err := db.Exec(fmt.Sprintf(`
	  CREATE UNIQUE INDEX IF NOT EXISTS %s_request_item_uniq
	  ON %s (request_id, item_id);
	`, models.RequestItemTable, models.RequestItemTable)).Error; err != nil {
		return err
	}

	// 占用量聚合走这个索引
	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_status_id
	  ON %s (status, id);
	`, models.RequestTable, models.RequestTable)).Error; err != nil {
		return err
	}

	// 一个用户同一角色同一部门只分配一次
	if err := db.Exec(fmt.Sprintf(`
	  CREATE UNIQUE INDEX IF NOT EXISTS %s_user_role_dept_uniq
	  ON %s (user_id, role, COALESCE(department_id, ''));
	`, models.RoleTable, models.RoleTable)).Error; err != nil {
		return err
	}

	return nil
}

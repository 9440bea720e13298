package backend

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

const notifyChannel = "cropwise_changes"

func migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "20240601_create_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&userRow{}, &farmRow{}, &cropRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&cropRow{}, &farmRow{}, &userRow{})
			},
		},
		{
			ID: "20240615_change_notify_triggers",
			Migrate: func(tx *gorm.DB) error {
				stmts := []string{
					`CREATE OR REPLACE FUNCTION cropwise_notify_change() RETURNS trigger AS $$
DECLARE rec RECORD;
BEGIN
	IF TG_OP = 'DELETE' THEN rec := OLD; ELSE rec := NEW; END IF;
	PERFORM pg_notify('` + notifyChannel + `', json_build_object(
		'table', TG_TABLE_NAME,
		'op', lower(TG_OP),
		'id', rec.id,
		'owner_id', rec.owner_id)::text);
	RETURN rec;
END;
$$ LANGUAGE plpgsql`,
				}
				for _, table := range []Table{TableFarms, TableCrops} {
					t := string(table)
					stmts = append(stmts,
						"DROP TRIGGER IF EXISTS "+t+"_notify ON "+t,
						"CREATE TRIGGER "+t+"_notify AFTER INSERT OR UPDATE OR DELETE ON "+t+
							" FOR EACH ROW EXECUTE FUNCTION cropwise_notify_change()",
					)
				}
				for _, s := range stmts {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				for _, t := range []Table{TableFarms, TableCrops} {
					if err := tx.Exec("DROP TRIGGER IF EXISTS " + string(t) + "_notify ON " + string(t)).Error; err != nil {
						return err
					}
				}
				return tx.Exec("DROP FUNCTION IF EXISTS cropwise_notify_change()").Error
			},
		},
	})
	return m.Migrate()
}

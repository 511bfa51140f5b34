package cli

import (
	"fmt"

	"group-quiz-service/internal/config"
	"group-quiz-service/internal/infra/memory"
	"group-quiz-service/internal/infra/postgres"
	infraredis "group-quiz-service/internal/infra/redis"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewSeedCmd loads quiz definitions from a YAML file into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert quizzes from a YAML file into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Quiz.SeedFile
			}
			if file == "" {
				return fmt.Errorf("no seed file given")
			}
			quizzes, err := config.LoadQuizzes(file)
			if err != nil {
				return err
			}
			if err := runMigrationsWithConfig(cmd.Context(), cfg, log); err != nil {
				return err
			}

			db := postgres.OpenBun(cfg.Postgres.URL)
			defer db.Close()
			writer := postgres.NewQuizWriter(db)
			createdCount := 0

			// drop cached definitions so running servers pick up the new version
			var cached *infraredis.QuizRepository
			if cfg.Redis.Addr != "" {
				client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
				defer client.Close()
				cached = infraredis.NewQuizRepository(client, memory.NewStaticQuizLoader(nil), 0, log)
			}
			for _, quiz := range quizzes {
				created, err := writer.SaveQuiz(cmd.Context(), quiz)
				if err != nil {
					return err
				}
				if created {
					createdCount++
				}
				if cached != nil {
					if err := cached.Forget(cmd.Context(), quiz.ID); err != nil {
						log.WithError(err).WithField("quiz_id", quiz.ID).Warn("drop cached quiz failed")
					}
				}
				log.WithFields(logrus.Fields{
					"quiz_id":   quiz.ID,
					"questions": len(quiz.Questions),
					"created":   created,
				}).Info("quiz seeded")
			}
			log.WithFields(logrus.Fields{"quizzes": len(quizzes), "created": createdCount}).Info("seeding finished")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML quiz file (defaults to quiz.seed_file)")
	return cmd
}

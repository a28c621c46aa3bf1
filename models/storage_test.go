package models

import (
	"log"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupSuite(tb testing.TB) (func(tb testing.TB), *Database) {
	log.Println("setup suite")

	// database file name
	dbName := "database_storage_test.db"

	// remove old database
	e := os.Remove(dbName)
	if e != nil {
		if !strings.Contains(e.Error(), "no such file or directory") {
			log.Fatal(e)
		}
	}

	// open and create a new database
	gdb, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	if err != nil {
		log.Fatal(err)
	}

	// migrate tables
	err = gdb.AutoMigrate(&User{}, &Repository{}, &EnvVar{}, &Deployment{}, &GithubAppInstallation{})
	if err != nil {
		log.Fatal(err)
	}

	database := &Database{GormDB: gdb}

	// Return a function to teardown the test
	return func(tb testing.TB) {
		log.Println("teardown suite")
	}, database
}

func seedUser(tb testing.TB, database *Database) *User {
	user, err := database.CreateOrUpdateUser(42, "octocat", "The Octocat",
		"https://avatars.githubusercontent.com/u/42", "https://github.com/octocat",
		"octocat@example.com", "gho_token")
	if err != nil {
		log.Fatal(err)
	}
	return user
}

func seedRepo(tb testing.TB, database *Database, user *User, repoId int64) *Repository {
	repo := &Repository{
		RepoId:     repoId,
		UserId:     user.ID,
		RepoName:   "site",
		OwnerLogin: "octocat",
		FullName:   "octocat/site",
	}
	if err := database.UpsertRepository(repo); err != nil {
		log.Fatal(err)
	}
	return repo
}

func TestCreateOrUpdateUserIsIdempotentOnGithubId(t *testing.T) {
	teardownSuite, database := setupSuite(t)
	defer teardownSuite(t)

	first, err := database.CreateOrUpdateUser(42, "octocat", "The Octocat", "", "", "old@example.com", "token-1")
	assert.NoError(t, err)

	second, err := database.CreateOrUpdateUser(42, "octocat", "The Octocat", "", "", "new@example.com", "token-2")
	assert.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	stored, err := database.GetUserByGithubId(42)
	assert.NoError(t, err)
	assert.Equal(t, "new@example.com", stored.Email)
	assert.Equal(t, "token-2", stored.AccessToken)

	var count int64
	database.GormDB.Model(&User{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestUpsertRepositoryPreservesDeployProgress(t *testing.T) {
	teardownSuite, database := setupSuite(t)
	defer teardownSuite(t)

	user := seedUser(t, database)
	seedRepo(t, database, user, 100)

	err := database.SetWorkflowInfo(100, 777)
	assert.NoError(t, err)
	err = database.SetDeployStatus(100, DeployStatusDeployed)
	assert.NoError(t, err)

	// a retried setup re-upserts the repository with fresh metadata
	err = database.UpsertRepository(&Repository{
		RepoId:      100,
		UserId:      user.ID,
		RepoName:    "site",
		OwnerLogin:  "octocat",
		FullName:    "octocat/site",
		Description: "updated description",
	})
	assert.NoError(t, err)

	repo, err := database.GetRepository(100)
	assert.NoError(t, err)
	assert.Equal(t, "updated description", repo.Description)
	assert.True(t, repo.DeployYmlInjected)
	assert.NotNil(t, repo.DeployYmlWorkflowId)
	assert.Equal(t, int64(777), *repo.DeployYmlWorkflowId)
	assert.Equal(t, DeployStatusDeployed, repo.DeployStatus)
}

func TestAcquirePipelineIsExclusivePerRepository(t *testing.T) {
	teardownSuite, database := setupSuite(t)
	defer teardownSuite(t)

	user := seedUser(t, database)
	seedRepo(t, database, user, 100)
	seedRepo(t, database, user, 200)

	err := database.AcquirePipeline(100)
	assert.NoError(t, err)

	err = database.AcquirePipeline(100)
	assert.ErrorIs(t, err, ErrPipelineBusy)

	// another repository is unaffected
	err = database.AcquirePipeline(200)
	assert.NoError(t, err)

	err = database.ReleasePipeline(100)
	assert.NoError(t, err)
	err = database.AcquirePipeline(100)
	assert.NoError(t, err)
}

func TestReplaceEnvVarsSwapsTheFullSet(t *testing.T) {
	teardownSuite, database := setupSuite(t)
	defer teardownSuite(t)

	user := seedUser(t, database)
	seedRepo(t, database, user, 100)

	err := database.ReplaceEnvVars(user.ID, 100, map[string]string{
		"API_URL":  "https://api.example.com",
		"OLD_ONLY": "drop-me",
	})
	assert.NoError(t, err)

	err = database.ReplaceEnvVars(user.ID, 100, map[string]string{
		"API_URL": "https://api2.example.com",
		"  ":      "blank keys are skipped",
		"TOKEN":   "abc",
	})
	assert.NoError(t, err)

	vars, err := database.ListEnvVars(100)
	assert.NoError(t, err)
	assert.Len(t, vars, 2)

	byKey := map[string]string{}
	for _, v := range vars {
		byKey[v.Key] = v.Value
	}
	assert.Equal(t, "https://api2.example.com", byKey["API_URL"])
	assert.Equal(t, "abc", byKey["TOKEN"])
}

func TestDeleteEnvVarChecksOwnership(t *testing.T) {
	teardownSuite, database := setupSuite(t)
	defer teardownSuite(t)

	user := seedUser(t, database)
	seedRepo(t, database, user, 100)

	err := database.UpsertEnvVar(user.ID, 100, "TOKEN", "abc")
	assert.NoError(t, err)

	other, err := database.CreateOrUpdateUser(43, "hubber", "Hubber", "", "", "", "t")
	assert.NoError(t, err)

	deleted, err := database.DeleteEnvVar(other.ID, 100, "TOKEN")
	assert.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = database.DeleteEnvVar(user.ID, 100, "TOKEN")
	assert.NoError(t, err)
	assert.True(t, deleted)
}

func TestUpsertDeploymentKeepsOnlyTheLatestRun(t *testing.T) {
	teardownSuite, database := setupSuite(t)
	defer teardownSuite(t)

	user := seedUser(t, database)
	seedRepo(t, database, user, 100)

	err := database.UpsertDeployment(&Deployment{
		RepoId:        100,
		WorkflowRunId: 1,
		Status:        RunStatusCompleted,
		Conclusion:    "failure",
	})
	assert.NoError(t, err)

	err = database.UpsertDeployment(&Deployment{
		RepoId:        100,
		WorkflowRunId: 2,
		Status:        RunStatusInProgress,
	})
	assert.NoError(t, err)

	deployment, err := database.GetDeployment(100)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), deployment.WorkflowRunId)
	assert.Equal(t, RunStatusInProgress, deployment.Status)

	var count int64
	database.GormDB.Model(&Deployment{}).Where("repo_id = ?", 100).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestUpdateDeploymentStatusReturnsTheUpdatedRow(t *testing.T) {
	teardownSuite, database := setupSuite(t)
	defer teardownSuite(t)

	user := seedUser(t, database)
	seedRepo(t, database, user, 100)

	err := database.UpsertDeployment(&Deployment{
		RepoId:        100,
		WorkflowRunId: 5,
		Status:        RunStatusInProgress,
	})
	assert.NoError(t, err)

	deployment, err := database.UpdateDeploymentStatus(100, RunStatusCompleted, "success")
	assert.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, deployment.Status)
	assert.Equal(t, "success", deployment.Conclusion)
	assert.True(t, deployment.Terminal())
}

func TestListDeploymentsForUserLoadsTheRepository(t *testing.T) {
	teardownSuite, database := setupSuite(t)
	defer teardownSuite(t)

	user := seedUser(t, database)
	seedRepo(t, database, user, 100)

	err := database.UpsertDeployment(&Deployment{
		RepoId:        100,
		WorkflowRunId: 1,
		Status:        RunStatusCompleted,
		Conclusion:    "success",
	})
	assert.NoError(t, err)

	deployments, err := database.ListDeploymentsForUser(user.ID)
	assert.NoError(t, err)
	assert.Len(t, deployments, 1)
	if assert.NotNil(t, deployments[0].Repository) {
		assert.Equal(t, "site", deployments[0].Repository.RepoName)
	}
}

func TestGithubAppInstallationLifecycle(t *testing.T) {
	teardownSuite, database := setupSuite(t)
	defer teardownSuite(t)

	err := database.GithubAppInstallationAdded(9001, 1, "octocat", 42)
	assert.NoError(t, err)

	// re-adding the same installation updates in place
	err = database.GithubAppInstallationAdded(9001, 1, "octocat", 42)
	assert.NoError(t, err)

	var count int64
	database.GormDB.Model(&GithubAppInstallation{}).Count(&count)
	assert.Equal(t, int64(1), count)

	err = database.GithubAppInstallationRemoved(9001)
	assert.NoError(t, err)

	var installation GithubAppInstallation
	err = database.GormDB.Take(&installation, "installation_id = ?", 9001).Error
	assert.NoError(t, err)
	assert.Equal(t, InstallationDeleted, installation.State)

	err = database.GithubAppInstallationRemoved(12345)
	assert.Error(t, err)
}

func TestGetActiveInstallationByAccount(t *testing.T) {
	teardownSuite, database := setupSuite(t)
	defer teardownSuite(t)

	err := database.GithubAppInstallationAdded(9001, 1, "octocat", 42)
	assert.NoError(t, err)

	installation, err := database.GetActiveInstallation("octocat")
	assert.NoError(t, err)
	assert.Equal(t, int64(9001), installation.InstallationId)

	// removed installations no longer resolve
	assert.NoError(t, database.GithubAppInstallationRemoved(9001))
	_, err = database.GetActiveInstallation("octocat")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

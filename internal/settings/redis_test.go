package settings

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unorderedArgs HSet的字段来自map，顺序不定，按多重集合比较
func unorderedArgs(expected, actual []interface{}) error {
	if len(expected) != len(actual) {
		return fmt.Errorf("arg count mismatch: want %v got %v", expected, actual)
	}
	counts := map[string]int{}
	for _, arg := range expected {
		counts[fmt.Sprint(arg)]++
	}
	for _, arg := range actual {
		counts[fmt.Sprint(arg)]--
	}
	for arg, n := range counts {
		if n != 0 {
			return fmt.Errorf("unexpected arg %q (want %v got %v)", arg, expected, actual)
		}
	}
	return nil
}

func TestRedisRepository_Upsert(t *testing.T) {
	db, mock := redismock.NewClientMock()
	repo := NewRedisRepositoryWithClient(db, nil)

	alias := "Garage"
	mock.ExpectTxPipeline()
	mock.CustomMatch(unorderedArgs).
		ExpectHSet("csms:cp:settings:CP1", "enabled", "1", "ocpp_version", "1.6", "alias", "Garage").
		SetVal(3)
	mock.ExpectTxPipelineExec()

	err := repo.Upsert(context.Background(), Record{
		ChargePointID: "CP1",
		Alias:         &alias,
		Enabled:       true,
		OCPPVersion:   "1.6",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRepository_Upsert_NilAliasDeletesField(t *testing.T) {
	db, mock := redismock.NewClientMock()
	repo := NewRedisRepositoryWithClient(db, nil)

	mock.ExpectTxPipeline()
	mock.ExpectHDel("csms:cp:settings:CP1", "alias").SetVal(1)
	mock.CustomMatch(unorderedArgs).
		ExpectHSet("csms:cp:settings:CP1", "enabled", "0", "ocpp_version", "2.0.1").
		SetVal(2)
	mock.ExpectTxPipelineExec()

	err := repo.Upsert(context.Background(), Record{
		ChargePointID: "CP1",
		Enabled:       false,
		OCPPVersion:   "2.0.1",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRepository_Load(t *testing.T) {
	db, mock := redismock.NewClientMock()
	repo := NewRedisRepositoryWithClient(db, nil)

	mock.ExpectHGetAll("csms:cp:settings:CP1").SetVal(map[string]string{
		"enabled":      "1",
		"ocpp_version": "1.6",
		"alias":        "Garage",
	})

	record, err := repo.Load(context.Background(), "CP1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "CP1", record.ChargePointID)
	assert.True(t, record.Enabled)
	assert.Equal(t, "1.6", record.OCPPVersion)
	require.NotNil(t, record.Alias)
	assert.Equal(t, "Garage", *record.Alias)
}

func TestRedisRepository_Load_Missing(t *testing.T) {
	db, mock := redismock.NewClientMock()
	repo := NewRedisRepositoryWithClient(db, nil)

	mock.ExpectHGetAll("csms:cp:settings:ghost").SetVal(map[string]string{})

	record, err := repo.Load(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestRedisRepository_Load_Error(t *testing.T) {
	db, mock := redismock.NewClientMock()
	repo := NewRedisRepositoryWithClient(db, nil)

	mock.ExpectHGetAll("csms:cp:settings:CP1").SetErr(errors.New("connection refused"))

	_, err := repo.Load(context.Background(), "CP1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CP1")
}

func TestRedisRepository_LoadAll(t *testing.T) {
	db, mock := redismock.NewClientMock()
	repo := NewRedisRepositoryWithClient(db, nil)

	mock.ExpectScan(0, "csms:cp:settings:*", 100).SetVal([]string{
		"csms:cp:settings:CP1",
		"csms:cp:settings:CP2",
	}, 0)
	mock.ExpectHGetAll("csms:cp:settings:CP1").SetVal(map[string]string{
		"enabled": "1", "ocpp_version": "1.6", "alias": "North",
	})
	mock.ExpectHGetAll("csms:cp:settings:CP2").SetVal(map[string]string{
		"enabled": "0", "ocpp_version": "2.0.1",
	})

	records, err := repo.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "CP1", records[0].ChargePointID)
	require.NotNil(t, records[0].Alias)
	assert.Equal(t, "North", *records[0].Alias)

	assert.Equal(t, "CP2", records[1].ChargePointID)
	assert.False(t, records[1].Enabled)
	assert.Nil(t, records[1].Alias)
}

func TestNoopRepository(t *testing.T) {
	repo := NewNoopRepository()

	require.NoError(t, repo.Upsert(context.Background(), Record{ChargePointID: "CP1"}))

	record, err := repo.Load(context.Background(), "CP1")
	require.NoError(t, err)
	assert.Nil(t, record)

	records, err := repo.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.NoError(t, repo.Close())
}

package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/models"
)

// DeviceLogRepositoryTestSuite 设备日志仓储测试套件
type DeviceLogRepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	repo *DeviceLogRepository
}

func (suite *DeviceLogRepositoryTestSuite) SetupTest() {
	suite.db = SetupTestDB()
	suite.repo = NewDeviceLogRepository(suite.db)
}

func (suite *DeviceLogRepositoryTestSuite) TearDownTest() {
	CleanupTestDB(suite.db)
}

// TestCreateAndSession 测试创建与会话查询
func (suite *DeviceLogRepositoryTestSuite) TestCreateAndSession() {
	log := NewTestDeviceLog(models.DeviceChannelDispenser, models.DirectionReceive, "SENSOR:DETECTED")
	log.EventKind = "sensor"

	err := suite.repo.Create(log)
	assert.NoError(suite.T(), err)
	assert.NotZero(suite.T(), log.ID)
	// BeforeCreate 补时间戳
	assert.NotZero(suite.T(), log.Timestamp)

	logs, err := suite.repo.GetBySessionID("test-session")
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), logs, 1)
	assert.Equal(suite.T(), "SENSOR:DETECTED", logs[0].Line)
}

// TestCreateBatch 测试批量写入
func (suite *DeviceLogRepositoryTestSuite) TestCreateBatch() {
	batch := []*models.DeviceLog{
		NewTestDeviceLog(models.DeviceChannelDispenser, models.DirectionSend, "STATUS"),
		NewTestDeviceLog(models.DeviceChannelDispenser, models.DirectionReceive, "STATUS:READY"),
		NewTestDeviceLog(models.DeviceChannelCard, models.DirectionSend, "PAY,5000,ORD1,CARD"),
	}

	err := suite.repo.CreateBatch(batch)
	assert.NoError(suite.T(), err)

	// 空批次直接返回
	assert.NoError(suite.T(), suite.repo.CreateBatch(nil))

	var count int64
	suite.db.Model(&models.DeviceLog{}).Count(&count)
	assert.Equal(suite.T(), int64(3), count)
}

// TestQuery 测试条件查询
func (suite *DeviceLogRepositoryTestSuite) TestQuery() {
	batch := []*models.DeviceLog{
		NewTestDeviceLog(models.DeviceChannelDispenser, models.DirectionReceive, "SENSOR:DISTANCE:42.5"),
		NewTestDeviceLog(models.DeviceChannelDispenser, models.DirectionReceive, "CONTROLLER:LED1:ON"),
		NewTestDeviceLog(models.DeviceChannelDispenser, models.DirectionSend, "LED1:ON"),
		NewTestDeviceLog(models.DeviceChannelCard, models.DirectionReceive, "READY"),
	}
	assert.NoError(suite.T(), suite.repo.CreateBatch(batch))

	// 按通道过滤
	logs, total, err := suite.repo.Query(&models.DeviceLogQuery{
		Channel: models.DeviceChannelDispenser,
	})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(3), total)
	assert.Len(suite.T(), logs, 3)

	// 按方向过滤
	_, total, err = suite.repo.Query(&models.DeviceLogQuery{
		Direction: models.DirectionSend,
	})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), total)

	// 关键字搜索
	logs, total, err = suite.repo.Query(&models.DeviceLogQuery{Keyword: "SENSOR"})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), total)
	assert.Contains(suite.T(), logs[0].Line, "SENSOR:DISTANCE")

	// 分页：total 是过滤后的全集
	logs, total, err = suite.repo.Query(&models.DeviceLogQuery{Limit: 2})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(4), total)
	assert.Len(suite.T(), logs, 2)
}

// TestGetLatest 测试最新日志
func (suite *DeviceLogRepositoryTestSuite) TestGetLatest() {
	batch := []*models.DeviceLog{
		NewTestDeviceLog(models.DeviceChannelDispenser, models.DirectionReceive, "one"),
		NewTestDeviceLog(models.DeviceChannelCard, models.DirectionReceive, "two"),
		NewTestDeviceLog(models.DeviceChannelCard, models.DirectionReceive, "three"),
	}
	assert.NoError(suite.T(), suite.repo.CreateBatch(batch))

	logs, err := suite.repo.GetLatest(10, models.DeviceChannelCard)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), logs, 2)

	logs, err = suite.repo.GetLatest(1, "")
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), logs, 1)
}

// TestGetStats 测试统计
func (suite *DeviceLogRepositoryTestSuite) TestGetStats() {
	unrec := NewTestDeviceLog(models.DeviceChannelDispenser, models.DirectionReceive, "GARBAGE")
	unrec.EventKind = "unrecognized"
	batch := []*models.DeviceLog{
		NewTestDeviceLog(models.DeviceChannelDispenser, models.DirectionSend, "STATUS"),
		NewTestDeviceLog(models.DeviceChannelDispenser, models.DirectionReceive, "STATUS:READY"),
		NewTestDeviceLog(models.DeviceChannelCard, models.DirectionSend, "STATUS"),
		unrec,
	}
	assert.NoError(suite.T(), suite.repo.CreateBatch(batch))

	stats, err := suite.repo.GetStats(nil, nil)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(4), stats.TotalCount)
	assert.Equal(suite.T(), int64(2), stats.TotalSend)
	assert.Equal(suite.T(), int64(2), stats.TotalReceive)
	assert.Equal(suite.T(), int64(3), stats.TotalDispenser)
	assert.Equal(suite.T(), int64(1), stats.TotalCard)
	assert.Equal(suite.T(), int64(1), stats.Unrecognized)
}

// TestCleanup 测试按保留期清理
func (suite *DeviceLogRepositoryTestSuite) TestCleanup() {
	old := NewTestDeviceLog(models.DeviceChannelDispenser, models.DirectionReceive, "old line")
	old.CreatedAt = time.Now().AddDate(0, 0, -30)
	fresh := NewTestDeviceLog(models.DeviceChannelDispenser, models.DirectionReceive, "fresh line")

	assert.NoError(suite.T(), suite.repo.Create(old))
	assert.NoError(suite.T(), suite.repo.Create(fresh))

	deleted, err := suite.repo.CleanupLogs(7)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), deleted)

	var count int64
	suite.db.Model(&models.DeviceLog{}).Count(&count)
	assert.Equal(suite.T(), int64(1), count)

	// 非法保留期报错
	_, err = suite.repo.CleanupLogs(0)
	assert.Error(suite.T(), err)
}

func TestDeviceLogRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(DeviceLogRepositoryTestSuite))
}

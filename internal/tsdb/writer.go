package tsdb

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// PointWriter 时序点写入端。Sink只依赖这个接口，
// 测试时用内存实现替换Influx客户端。
type PointWriter interface {
	// WritePoint 阻塞写入一个点
	WritePoint(ctx context.Context, measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) error
	// Close 释放底层客户端
	Close()
}

// influxWriter InfluxDB 2.x适配
type influxWriter struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

// NewInfluxWriter 创建Influx写入端
func NewInfluxWriter(url, token, org, bucket string) PointWriter {
	client := influxdb2.NewClient(url, token)
	return &influxWriter{
		client: client,
		write:  client.WriteAPIBlocking(org, bucket),
	}
}

// WritePoint 实现PointWriter
func (w *influxWriter) WritePoint(ctx context.Context, measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) error {
	point := influxdb2.NewPoint(measurement, tags, fields, ts)
	return w.write.WritePoint(ctx, point)
}

// Close 关闭客户端
func (w *influxWriter) Close() {
	w.client.Close()
}

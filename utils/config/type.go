package config

import "time"

// InputPath 指定MongoDB输入数据来源的配置
type InputPath struct {
	DB  string `yaml:"db"`  // 数据库名
	Col string `yaml:"col"` // 集合名
}

// GetDb 获取数据库名
func (p InputPath) GetDb() string {
	return p.DB
}

// GetColl 获取集合名
func (p InputPath) GetColl() string {
	return p.Col
}

// GraphInput 路网输入配置
// 功能：定义路网数据来源，文件优先于MongoDB
// 说明：文件格式支持json（节点/边记录）、osm（XML）与pbf，未指定时根据扩展名推断
type GraphInput struct {
	File       string     `yaml:"file,omitempty"`        // 文件路径
	Format     string     `yaml:"format,omitempty"`      // json|osm|pbf
	Nodes      *InputPath `yaml:"nodes,omitempty"`       // MongoDB节点集合
	Edges      *InputPath `yaml:"edges,omitempty"`       // MongoDB边集合
	SignalTags []string   `yaml:"signal_tags,omitempty"` // OSM中标记信控路口的highway取值，缺省traffic_signals
}

// Input 指定服务所有输入数据的配置项
type Input struct {
	URI           string     `yaml:"uri,omitempty"`           // MongoDB连接字符串
	Graph         GraphInput `yaml:"graph"`                   // 路网
	Intersections *InputPath `yaml:"intersections,omitempty"` // 受控路口（MongoDB），为空则使用signal.intersections
}

// Routing 路径规划配置
type Routing struct {
	Engine string `yaml:"engine,omitempty"` // dijkstra|ch
}

// Fallback 无活动路径时的兜底目标
type Fallback struct {
	ID  string  `yaml:"id"`
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// Corridor 走廊引擎配置
type Corridor struct {
	ProximityM     float64   `yaml:"proximity_m,omitempty"`     // 触发距离阈值（米）
	TTIS           float64   `yaml:"tti_s,omitempty"`           // 触发到达时间阈值（秒）
	VelocityWindow int       `yaml:"velocity_window,omitempty"` // 速度平滑窗口大小
	Workers        int       `yaml:"workers,omitempty"`         // 按车辆分区的工作协程数
	Fallback       *Fallback `yaml:"fallback,omitempty"`
}

// Intersection 受控路口静态配置
type Intersection struct {
	ID             string              `yaml:"id" bson:"_id"`
	Lat            float64             `yaml:"lat" bson:"lat"`
	Lon            float64             `yaml:"lon" bson:"lon"`
	ConflictGroups map[string][]string `yaml:"conflict_groups,omitempty" bson:"conflict_groups,omitempty"` // 为空则使用垂直方向
}

// Signal 信控配置
type Signal struct {
	PrimaryIntersection    string         `yaml:"primary_intersection,omitempty"`     // 请求未指定路口时的缺省路口
	ImmediateETAS          *float64       `yaml:"immediate_eta_s,omitempty"`          // ETA不超过该值时立即激活，0表示只有ETA为0时立即激活
	LeadTimeS              *float64       `yaml:"lead_time_s,omitempty"`              // 延迟激活的提前量，可以为0
	CancelStaleActivations bool           `yaml:"cancel_stale_activations,omitempty"` // 路径变更时取消尚未触发的延迟激活通知
	Intersections          []Intersection `yaml:"intersections,omitempty"`
}

// Bridge 信控桥接配置
type Bridge struct {
	Endpoint string        `yaml:"endpoint,omitempty"` // 远程信控服务地址，为空则进程内直连
	APIKey   string        `yaml:"api_key,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// Auth 外部鉴权配置
type Auth struct {
	Token    string   `yaml:"token,omitempty"`    // 共享密钥，为空则不校验
	Vehicles []string `yaml:"vehicles,omitempty"` // 授权车辆，为空则不校验
}

// Event 广播配置
type Event struct {
	SubscriberBuffer int `yaml:"subscriber_buffer,omitempty"`
}

// Point 坐标
type Point struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// Simulate 行驶模拟器配置
type Simulate struct {
	VehicleID string        `yaml:"vehicle_id,omitempty"`
	Waypoints []Point       `yaml:"waypoints,omitempty"` // 模拟路线途经点，至少2个
	SpeedMS   float64       `yaml:"speed_ms,omitempty"`
	Interval  time.Duration `yaml:"interval,omitempty"`
	NoiseM    float64       `yaml:"noise_m,omitempty"`   // GPS噪声标准差（米）
	DropRate  float64       `yaml:"drop_rate,omitempty"` // 采样丢失概率，模拟GPS信号中断
	Seed      uint64        `yaml:"seed,omitempty"`
}

// Config YAML配置文件的根结构
type Config struct {
	Listen   string   `yaml:"listen,omitempty"`
	Input    Input    `yaml:"input"`
	Routing  Routing  `yaml:"routing,omitempty"`
	Corridor Corridor `yaml:"corridor,omitempty"`
	Signal   Signal   `yaml:"signal"`
	Bridge   Bridge   `yaml:"bridge,omitempty"`
	Auth     Auth     `yaml:"auth,omitempty"`
	Event    Event    `yaml:"event,omitempty"`
	Simulate Simulate `yaml:"simulate,omitempty"`
}

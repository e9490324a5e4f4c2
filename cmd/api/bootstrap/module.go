package bootstrap

import "go.uber.org/fx"

// Module は serve に必要な依存一式
var Module = fx.Options(
	CoreModule,
	ClockModule,
	StorageModule,
	RedisModule,
	KafkaModule,
	ServiceModule,
	HTTPModule,
	ServerModule,
	WorkerModule,
)

// CommandModule は HTTP を持たない単発コマンド用の依存一式
var CommandModule = fx.Options(
	CoreModule,
	ClockModule,
	StorageModule,
	RedisModule,
	KafkaModule,
	ServiceModule,
)

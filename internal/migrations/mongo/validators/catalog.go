package validators

import "go.mongodb.org/mongo-driver/bson"

var ServiceValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"tenant_id", "name", "duration_min", "active"},
		"additionalProperties": true,
		"properties": bson.M{
			"tenant_id":    bson.M{"bsonType": "string", "minLength": 1},
			"name":         bson.M{"bsonType": "string", "minLength": 1, "maxLength": 100},
			"duration_min": bson.M{"bsonType": []string{"int", "long"}, "minimum": 1, "maximum": 1440},
			"price":        bson.M{"bsonType": "decimal"},
			"active":       bson.M{"bsonType": "bool"},
		},
	},
}

var ResourceValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"tenant_id", "name", "active", "start_of_day", "end_of_day", "working_days"},
		"additionalProperties": true,
		"properties": bson.M{
			"tenant_id":    bson.M{"bsonType": "string", "minLength": 1},
			"name":         bson.M{"bsonType": "string", "minLength": 1, "maxLength": 100},
			"active":       bson.M{"bsonType": "bool"},
			"start_of_day": bson.M{"bsonType": "string", "pattern": clockPattern},
			"end_of_day":   bson.M{"bsonType": "string", "pattern": clockPattern},
			"working_days": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "string",
					"enum":     []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"},
				},
			},
			"time_zone": bson.M{"bsonType": "string"},
		},
	},
}

var BlackoutValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"tenant_id", "date"},
		"additionalProperties": true,
		"properties": bson.M{
			"tenant_id":  bson.M{"bsonType": "string", "minLength": 1},
			"date":       bson.M{"bsonType": "string", "pattern": datePattern},
			"start_time": bson.M{"bsonType": "string", "pattern": clockPattern},
			"end_time":   bson.M{"bsonType": "string", "pattern": clockPattern},
		},
	},
}

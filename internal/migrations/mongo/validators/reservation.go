package validators

import "go.mongodb.org/mongo-driver/bson"

var clockPattern = `^([01][0-9]|2[0-3]):[0-5][0-9]$|^24:00$`

var datePattern = `^[0-9]{4}-[0-9]{2}-[0-9]{2}$`

var ReservationValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"tenant_id",
			"resource_id",
			"service_id",
			"customer_name",
			"date",
			"start_time",
			"end_time",
			"duration_min",
			"state",
			"holds_slot",
			"cancel_token",
			"created_at",
			"updated_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"tenant_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"resource_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"service_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"customer_name": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 120,
			},

			"date": bson.M{
				"bsonType": "string",
				"pattern":  datePattern,
			},

			"start_time": bson.M{
				"bsonType": "string",
				"pattern":  clockPattern,
			},

			"end_time": bson.M{
				"bsonType": "string",
				"pattern":  clockPattern,
			},

			"duration_min": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
				"maximum":  1440,
			},

			"price": bson.M{
				"bsonType": "decimal",
			},

			"state": bson.M{
				"bsonType": "string",
				"enum": []string{
					"BOOKED",
					"CANCELLED",
					"COMPLETED",
				},
			},

			"holds_slot": bson.M{
				"bsonType": "bool",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
